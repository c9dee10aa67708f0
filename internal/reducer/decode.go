package reducer

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ibs-source/livesync/internal/model"
)

// ErrMalformedPayload marks an inbound payload that failed shape validation.
var ErrMalformedPayload = errors.New("malformed payload")

// wireTime accepts RFC 3339 strings and epoch milliseconds.
type wireTime struct {
	time.Time
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("timestamp is null")
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid timestamp string: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		w.Time = t
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	w.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

type wireMessage struct {
	ID        *string   `json:"id"`
	Text      *string   `json:"text"`
	CreatedAt *wireTime `json:"createdAt"`
	Author    *string   `json:"author"`
	Channel   *string   `json:"channel"`
	Important *bool     `json:"important"`
	Tags      []string  `json:"tags"`
}

type wireStatus struct {
	Online    *bool     `json:"online"`
	Load      *float64  `json:"load"`
	UpdatedAt *wireTime `json:"updatedAt"`
}

type wireSettings struct {
	Theme     *string   `json:"theme"`
	Lang      *string   `json:"lang"`
	UpdatedAt *wireTime `json:"updatedAt"`
}

func unmarshal(topic model.Topic, payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: %s payload is empty", ErrMalformedPayload, topic)
	}
	if err := sonic.ConfigStd.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, topic, err)
	}
	return nil
}

func missing(topic model.Topic, field string) error {
	return fmt.Errorf("%w: %s missing required field: %s", ErrMalformedPayload, topic, field)
}

// DecodeMessage decodes a messageAdded payload.
func DecodeMessage(payload []byte) (model.Message, error) {
	var w wireMessage
	if err := unmarshal(model.TopicMessageAdded, payload, &w); err != nil {
		return model.Message{}, err
	}

	switch {
	case w.ID == nil || *w.ID == "":
		return model.Message{}, missing(model.TopicMessageAdded, "id")
	case w.Text == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "text")
	case w.CreatedAt == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "createdAt")
	case w.Author == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "author")
	case w.Channel == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "channel")
	case w.Important == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "important")
	case w.Tags == nil:
		return model.Message{}, missing(model.TopicMessageAdded, "tags")
	}

	return model.Message{
		ID:        *w.ID,
		Text:      *w.Text,
		CreatedAt: w.CreatedAt.Time,
		Author:    *w.Author,
		Channel:   *w.Channel,
		Important: *w.Important,
		Tags:      w.Tags,
	}, nil
}

// DecodeStatus decodes a systemStatusChanged payload.
func DecodeStatus(payload []byte) (model.SystemStatus, error) {
	var w wireStatus
	if err := unmarshal(model.TopicSystemStatusChanged, payload, &w); err != nil {
		return model.SystemStatus{}, err
	}

	switch {
	case w.Online == nil:
		return model.SystemStatus{}, missing(model.TopicSystemStatusChanged, "online")
	case w.Load == nil:
		return model.SystemStatus{}, missing(model.TopicSystemStatusChanged, "load")
	case w.UpdatedAt == nil:
		return model.SystemStatus{}, missing(model.TopicSystemStatusChanged, "updatedAt")
	}

	return model.SystemStatus{
		Online:    *w.Online,
		Load:      *w.Load,
		UpdatedAt: w.UpdatedAt.Time,
	}, nil
}

// DecodeSettings decodes a settingsUpdated payload.
func DecodeSettings(payload []byte) (model.Settings, error) {
	var w wireSettings
	if err := unmarshal(model.TopicSettingsUpdated, payload, &w); err != nil {
		return model.Settings{}, err
	}

	switch {
	case w.Theme == nil:
		return model.Settings{}, missing(model.TopicSettingsUpdated, "theme")
	case w.Lang == nil:
		return model.Settings{}, missing(model.TopicSettingsUpdated, "lang")
	case w.UpdatedAt == nil:
		return model.Settings{}, missing(model.TopicSettingsUpdated, "updatedAt")
	}

	return model.Settings{
		Theme:     *w.Theme,
		Lang:      *w.Lang,
		UpdatedAt: w.UpdatedAt.Time,
	}, nil
}
