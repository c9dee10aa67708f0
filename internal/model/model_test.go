package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{TopicMessageAdded, true},
		{TopicSystemStatusChanged, true},
		{TopicSettingsUpdated, true},
		{Topic("messageRemoved"), false},
		{Topic(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Valid())
		})
	}
}

func TestTopicsOrder(t *testing.T) {
	assert.Equal(t, []Topic{"messageAdded", "systemStatusChanged", "settingsUpdated"}, Topics)
	assert.Equal(t, "settingsUpdated", TopicSettingsUpdated.String())
}

func TestMessageClone(t *testing.T) {
	orig := Message{ID: "1", Tags: []string{"a", "b"}}

	clone := orig.Clone()
	clone.Tags[0] = "changed"

	assert.Equal(t, []string{"a", "b"}, orig.Tags)
	assert.Equal(t, "1", clone.ID)
}

func TestChangeClone(t *testing.T) {
	m := Message{ID: "1", Tags: []string{"a"}}
	ch := Change{Topic: TopicMessageAdded, Value: m}

	clone := ch.Clone()
	clone.Value.(Message).Tags[0] = "changed"
	assert.Equal(t, []string{"a"}, m.Tags)

	status := Change{Topic: TopicSystemStatusChanged, Value: SystemStatus{Online: true, Load: 0.5}}
	assert.Equal(t, status, status.Clone())
}
