package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFrame(t *testing.T) {
	f, err := Subscribe("op-1", SubscribePayload{
		Query:         "mutation SendMessage($text: String!) { sendMessage(text: $text) { id } }",
		OperationName: "SendMessage",
		Variables:     map[string]any{"text": "hi"},
	})
	require.NoError(t, err)

	data, err := MarshalFrame(f)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "op-1", wire["id"])
	assert.Equal(t, "subscribe", wire["type"])
	payload := wire["payload"].(map[string]any)
	assert.Equal(t, "SendMessage", payload["operationName"])
	assert.Equal(t, map[string]any{"text": "hi"}, payload["variables"])
}

func TestMarshalFrame_ConnectionLevelOmitsID(t *testing.T) {
	data, err := MarshalFrame(Frame{Type: MsgConnectionInit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_init"}`, string(data))
}

func TestUnmarshalFrame(t *testing.T) {
	f, err := UnmarshalFrame([]byte(`{"id":"7","type":"next","payload":{"data":{"x":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, MsgNext, f.Type)

	_, err = UnmarshalFrame([]byte(`{"id":"7"}`))
	assert.Error(t, err)

	_, err = UnmarshalFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeNext(t *testing.T) {
	p, err := DecodeNext(Frame{ID: "1", Type: MsgNext, Payload: json.RawMessage(`{"data":{"a":true},"errors":[{"message":"boom"}]}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":true}`, string(p.Data))
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "boom", p.Errors[0].Message)

	_, err = DecodeNext(Frame{ID: "1", Type: MsgNext})
	assert.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	list := DecodeErrors(Frame{Payload: json.RawMessage(`[{"message":"a"},{"message":"b"}]`)})
	assert.Equal(t, []GraphQLError{{Message: "a"}, {Message: "b"}}, list)

	single := DecodeErrors(Frame{Payload: json.RawMessage(`{"message":"only"}`)})
	assert.Equal(t, []GraphQLError{{Message: "only"}}, single)

	assert.Nil(t, DecodeErrors(Frame{Payload: json.RawMessage(`42`)}))
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:       "idle",
		Connecting: "connecting",
		Open:       "open",
		Closing:    "closing",
		Closed:     "closed",
		Errored:    "errored",
		State(99):  "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
	assert.True(t, Closed.Terminal())
	assert.True(t, Errored.Terminal())
	assert.False(t, Open.Terminal())
}
