package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/ibs-source/livesync/internal/model"
	"github.com/ibs-source/livesync/internal/reducer"
)

const messageSelection = "{ id text createdAt author channel important tags }"

// topicOperation is the subscription that feeds one topic.
type topicOperation struct {
	topic         model.Topic
	operationName string
	query         string
}

var topicOperations = []topicOperation{
	{
		topic:         model.TopicMessageAdded,
		operationName: "OnMessageAdded",
		query:         "subscription OnMessageAdded { messageAdded " + messageSelection + " }",
	},
	{
		topic:         model.TopicSystemStatusChanged,
		operationName: "OnSystemStatusChanged",
		query:         "subscription OnSystemStatusChanged { systemStatusChanged { online load updatedAt } }",
	},
	{
		topic:         model.TopicSettingsUpdated,
		operationName: "OnSettingsUpdated",
		query:         "subscription OnSettingsUpdated { settingsUpdated { theme lang updatedAt } }",
	},
}

const (
	sendMessageOperation = "SendMessage"
	sendMessageField     = "sendMessage"
	sendMessageMutation  = "mutation SendMessage($text: String!) { sendMessage(text: $text) " + messageSelection + " }"
)

// extractField returns the value of field in a GraphQL data object.
func extractField(data json.RawMessage, field string) (json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: response has no data", reducer.ErrMalformedPayload)
	}
	var fields map[string]json.RawMessage
	if err := sonic.ConfigStd.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: data is not an object: %v", reducer.ErrMalformedPayload, err)
	}
	raw, ok := fields[field]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: data has no %s", reducer.ErrMalformedPayload, field)
	}
	return raw, nil
}
