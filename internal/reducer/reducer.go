// Package reducer folds inbound events into the mirrored slices.
//
// Every function here is pure: inputs are never mutated and a new value is
// returned. The message slice is append-with-dedup keyed by Message.ID;
// status and settings are replace-latest by arrival.
package reducer

import (
	"fmt"

	"github.com/ibs-source/livesync/internal/model"
)

// State holds one value per topic. A nil Status or Settings means no event
// has been received yet.
type State struct {
	Messages []model.Message
	Status   *model.SystemStatus
	Settings *model.Settings
}

// AppendMessage appends m unless a message with the same ID is already
// present. The second result reports whether the slice changed.
func AppendMessage(current []model.Message, m model.Message) ([]model.Message, bool) {
	for i := range current {
		if current[i].ID == m.ID {
			return current, false
		}
	}
	next := make([]model.Message, len(current), len(current)+1)
	copy(next, current)
	return append(next, m), true
}

// ReplaceStatus discards the previous status.
func ReplaceStatus(_ *model.SystemStatus, incoming model.SystemStatus) *model.SystemStatus {
	return &incoming
}

// ReplaceSettings discards the previous settings.
func ReplaceSettings(_ *model.Settings, incoming model.Settings) *model.Settings {
	return &incoming
}

// Apply decodes env and folds it into the slice for its topic. Only that
// topic's field of the returned State differs from s. The returned change
// is nil when the event was a duplicate. A decode error leaves s untouched.
func Apply(s State, env model.Envelope) (State, *model.Change, error) {
	if !env.Topic.Valid() {
		return s, nil, fmt.Errorf("unknown topic %q", env.Topic)
	}

	switch env.Topic {
	case model.TopicMessageAdded:
		m, err := DecodeMessage(env.Payload)
		if err != nil {
			return s, nil, err
		}
		next, changed := AppendMessage(s.Messages, m)
		if !changed {
			return s, nil, nil
		}
		s.Messages = next
		return s, &model.Change{Topic: env.Topic, Value: m}, nil

	case model.TopicSystemStatusChanged:
		st, err := DecodeStatus(env.Payload)
		if err != nil {
			return s, nil, err
		}
		s.Status = ReplaceStatus(s.Status, st)
		return s, &model.Change{Topic: env.Topic, Value: st}, nil

	case model.TopicSettingsUpdated:
		set, err := DecodeSettings(env.Payload)
		if err != nil {
			return s, nil, err
		}
		s.Settings = ReplaceSettings(s.Settings, set)
		return s, &model.Change{Topic: env.Topic, Value: set}, nil
	}

	return s, nil, fmt.Errorf("no reducer for topic %q", env.Topic)
}
