package transport

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Subprotocol is the WebSocket sub-protocol negotiated with the peer.
const Subprotocol = "graphql-transport-ws"

// Frame types of the graphql-transport-ws protocol.
const (
	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgSubscribe      = "subscribe"
	MsgNext           = "next"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// Frame is one protocol message. ID is empty for connection-level frames.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of a subscribe frame. Queries, mutations
// and subscriptions all travel as subscribe operations.
type SubscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GraphQLError is one entry of an errors list.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// NextPayload is the payload of a next frame.
type NextPayload struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Subscribe builds a subscribe frame for operation id.
func Subscribe(id string, p SubscribePayload) (Frame, error) {
	raw, err := sonic.ConfigStd.Marshal(p)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode subscribe payload: %w", err)
	}
	return Frame{ID: id, Type: MsgSubscribe, Payload: raw}, nil
}

// Complete builds a complete frame, which stops operation id.
func Complete(id string) Frame {
	return Frame{ID: id, Type: MsgComplete}
}

// MarshalFrame encodes f for the wire.
func MarshalFrame(f Frame) ([]byte, error) {
	return sonic.ConfigStd.Marshal(f)
}

// UnmarshalFrame decodes one wire message. A frame without a type is
// rejected.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	if err := sonic.ConfigStd.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("invalid frame: missing type")
	}
	return f, nil
}

// DecodeNext decodes the payload of a next frame.
func DecodeNext(f Frame) (NextPayload, error) {
	var p NextPayload
	if len(f.Payload) == 0 {
		return p, fmt.Errorf("next frame %s has no payload", f.ID)
	}
	if err := sonic.ConfigStd.Unmarshal(f.Payload, &p); err != nil {
		return p, fmt.Errorf("invalid next payload for %s: %w", f.ID, err)
	}
	return p, nil
}

// DecodeErrors decodes the payload of an error frame. Peers that send a
// single object instead of a list are tolerated.
func DecodeErrors(f Frame) []GraphQLError {
	var list []GraphQLError
	if err := sonic.ConfigStd.Unmarshal(f.Payload, &list); err == nil {
		return list
	}
	var single GraphQLError
	if err := sonic.ConfigStd.Unmarshal(f.Payload, &single); err == nil && single.Message != "" {
		return []GraphQLError{single}
	}
	return nil
}
