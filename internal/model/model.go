// Package model provides the values mirrored by the sync client: topics,
// event envelopes and the three slice value types.
package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Topic names a class of inbound event sharing one payload shape and one
// merge policy.
type Topic string

const (
	TopicMessageAdded        Topic = "messageAdded"
	TopicSystemStatusChanged Topic = "systemStatusChanged"
	TopicSettingsUpdated     Topic = "settingsUpdated"
)

// Topics lists every topic in subscription order.
var Topics = []Topic{TopicMessageAdded, TopicSystemStatusChanged, TopicSettingsUpdated}

func (t Topic) String() string { return string(t) }

// Valid reports whether t is one of the known topics.
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// Envelope is one inbound event as received from the peer. Payload is the
// undecoded value of the topic field.
type Envelope struct {
	Topic   Topic
	Payload json.RawMessage
}

// Message is an immutable chat message. ID is its identity.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    string    `json:"author"`
	Channel   string    `json:"channel"`
	Important bool      `json:"important"`
	Tags      []string  `json:"tags"`
}

// Clone returns a copy of m that shares no memory with it.
func (m Message) Clone() Message {
	m.Tags = slices.Clone(m.Tags)
	return m
}

// SystemStatus is a point-in-time snapshot of the peer's health.
type SystemStatus struct {
	Online    bool      `json:"online"`
	Load      float64   `json:"load"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Settings is the latest settings snapshot.
type Settings struct {
	Theme     string    `json:"theme"`
	Lang      string    `json:"lang"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Change describes one slice update. Value is the appended Message for
// TopicMessageAdded, or the new SystemStatus / Settings.
type Change struct {
	Topic Topic
	Value any
}

// Clone returns a copy of c whose Value shares no memory with c.Value.
func (c Change) Clone() Change {
	if m, ok := c.Value.(Message); ok {
		c.Value = m.Clone()
	}
	return c
}
