package jsonfast

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		min      int
	}{
		{"positive capacity", 512, 512},
		{"zero capacity", 0, 256},
		{"negative capacity", -10, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			if cap(b.buf) < tt.min {
				t.Errorf("cap = %d; want >= %d", cap(b.buf), tt.min)
			}
		})
	}
}

func TestResetAndDetach(t *testing.T) {
	b := New(64)
	b.BeginObject()
	b.AddStringField("k", "v")
	b.EndObject()

	detached := b.Detach()
	b.Reset()

	if len(b.Bytes()) != 0 {
		t.Errorf("len after Reset = %d; want 0", len(b.Bytes()))
	}
	if b.opened || !b.first {
		t.Error("Reset did not restore initial state")
	}

	b.BeginObject()
	b.AddStringField("other", "value")
	b.EndObject()

	if string(detached) != `{"k":"v"}` {
		t.Errorf("detached = %s; want {\"k\":\"v\"}", detached)
	}
}

func TestAddStringField(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"simple", "hello world", `{"f":"hello world"}`},
		{"empty", "", `{"f":""}`},
		{"quotes", `she said "hi"`, `{"f":"she said \"hi\""}`},
		{"backslash", `C:\tmp`, `{"f":"C:\\tmp"}`},
		{"newline", "a\nb", `{"f":"a\nb"}`},
		{"control", "a\x01b", `{"f":"a\u0001b"}`},
		{"unicode", "ciao 世界", `{"f":"ciao 世界"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(64)
			b.AddStringField("f", tt.value)
			b.EndObject()

			if got := string(b.Bytes()); got != tt.expected {
				t.Errorf("got %s; want %s", got, tt.expected)
			}
			var parsed map[string]string
			if err := json.Unmarshal(b.Bytes(), &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed["f"] != tt.value {
				t.Errorf("round trip = %q; want %q", parsed["f"], tt.value)
			}
		})
	}
}

func TestAddRawJSONField(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{"object", []byte(`{"id":"m1"}`), `{"data":{"id":"m1"}}`},
		{"array", []byte(`["a","b"]`), `{"data":["a","b"]}`},
		{"number", []byte(`0.5`), `{"data":0.5}`},
		{"empty becomes null", nil, `{"data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(64)
			b.BeginObject()
			b.AddRawJSONField("data", tt.raw)
			b.EndObject()
			if got := string(b.Bytes()); got != tt.expected {
				t.Errorf("got %s; want %s", got, tt.expected)
			}
		})
	}
}

func TestScalarFields(t *testing.T) {
	b := New(64)
	b.BeginObject()
	b.AddIntField("zero", 0)
	b.AddIntField("neg", -42)
	b.AddBoolField("yes", true)
	b.AddBoolField("no", false)
	b.EndObject()

	expected := `{"zero":0,"neg":-42,"yes":true,"no":false}`
	if got := string(b.Bytes()); got != expected {
		t.Errorf("got %s; want %s", got, expected)
	}
}

func TestAddTimeField(t *testing.T) {
	tests := []struct {
		name     string
		in       time.Time
		expected string
	}{
		{"whole second", time.Date(2024, 5, 1, 10, 0, 7, 0, time.UTC), `{"at":"2024-05-01T10:00:07.000Z"}`},
		{"millis", time.Date(2024, 5, 1, 10, 0, 7, 123456789, time.UTC), `{"at":"2024-05-01T10:00:07.123Z"}`},
		{"converted to UTC", time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)), `{"at":"2024-05-01T10:00:00.000Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(64)
			b.AddTimeField("at", tt.in)
			b.EndObject()

			if got := string(b.Bytes()); got != tt.expected {
				t.Errorf("got %s; want %s", got, tt.expected)
			}

			var parsed struct {
				At time.Time `json:"at"`
			}
			if err := json.Unmarshal(b.Bytes(), &parsed); err != nil {
				t.Fatalf("timestamp does not parse back: %v", err)
			}
			if !parsed.At.Equal(tt.in.Truncate(time.Millisecond)) {
				t.Errorf("round trip = %v; want %v", parsed.At, tt.in)
			}
		})
	}
}

func TestRecordShape(t *testing.T) {
	b := New(256)
	b.BeginObject()
	b.AddStringField("id", "01HX0000000000000000000000")
	b.AddStringField("topic", "messageAdded")
	b.AddTimeField("emittedAt", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	b.AddRawJSONField("data", []byte(`{"id":"m1","tags":[]}`))
	b.EndObject()

	var parsed map[string]interface{}
	if err := json.Unmarshal(b.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["topic"] != "messageAdded" {
		t.Errorf("topic = %v; want messageAdded", parsed["topic"])
	}
	data, ok := parsed["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T; want object", parsed["data"])
	}
	if data["id"] != "m1" {
		t.Errorf("data.id = %v; want m1", data["id"])
	}
}

func BenchmarkBuilder(b *testing.B) {
	raw := []byte(`{"online":true,"load":0.42,"updatedAt":"2024-05-01T10:00:00.000Z"}`)
	now := time.Now()
	builder := New(256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.Reset()
		builder.BeginObject()
		builder.AddStringField("id", "01HX0000000000000000000000")
		builder.AddStringField("topic", "systemStatusChanged")
		builder.AddTimeField("emittedAt", now)
		builder.AddRawJSONField("data", raw)
		builder.EndObject()
		_ = builder.Bytes()
	}
}
