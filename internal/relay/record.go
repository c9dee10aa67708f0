package relay

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/model"
	"github.com/ibs-source/livesync/pkg/jsonfast"
)

// Record is one relayed change. ID is a ULID, so records sort by emission.
type Record struct {
	ID        string      `json:"id"`
	Topic     model.Topic `json:"topic"`
	EmittedAt time.Time   `json:"emittedAt"`
	Data      any         `json:"data"`
}

// Encoder turns a record into a sink payload.
type Encoder interface {
	Encode(rec Record) ([]byte, error)
	Name() string
}

// NewEncoder returns the encoder for a configured encoding name.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case config.EncodingJSON:
		return &jsonEncoder{b: jsonfast.New(512)}, nil
	case config.EncodingMsgpack:
		return msgpackEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown relay encoding %q", name)
	}
}

// jsonEncoder is not safe for concurrent use; the relay encodes on one worker.
type jsonEncoder struct {
	b *jsonfast.Builder
}

func (e *jsonEncoder) Name() string { return config.EncodingJSON }

func (e *jsonEncoder) Encode(rec Record) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", rec.Topic, err)
	}

	e.b.Reset()
	e.b.BeginObject()
	e.b.AddStringField("id", rec.ID)
	e.b.AddStringField("topic", rec.Topic.String())
	e.b.AddTimeField("emittedAt", rec.EmittedAt)
	e.b.AddRawJSONField("data", data)
	e.b.EndObject()
	return e.b.Detach(), nil
}

type msgpackEncoder struct{}

func (msgpackEncoder) Name() string { return config.EncodingMsgpack }

func (msgpackEncoder) Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", rec.Topic, err)
	}
	return buf.Bytes(), nil
}
