// Package wstest provides an in-process graphql-transport-ws peer for tests.
package wstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/ibs-source/livesync/internal/transport"
)

// Timeout bounds every wait helper.
const Timeout = 2 * time.Second

// Peer is a fake sync peer served by httptest. It accepts one connection at
// a time and records every frame the client sends.
type Peer struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	noAck     bool
	responder func(p *Peer, f transport.Frame)

	frames    chan transport.Frame
	connected chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Option configures a Peer.
type Option func(*Peer)

// WithoutAck makes the peer read connection_init but never acknowledge it.
func WithoutAck() Option {
	return func(p *Peer) { p.noAck = true }
}

// WithoutSubprotocol makes the peer refuse to negotiate graphql-transport-ws.
func WithoutSubprotocol() Option {
	return func(p *Peer) { p.upgrader.Subprotocols = nil }
}

// WithResponder calls fn for every frame received after the handshake,
// before the frame is queued for Expect.
func WithResponder(fn func(p *Peer, f transport.Frame)) Option {
	return func(p *Peer) { p.responder = fn }
}

// NewPeer starts a peer that is shut down when tb finishes.
func NewPeer(tb testing.TB, opts ...Option) *Peer {
	tb.Helper()
	p := &Peer{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{transport.Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		frames:    make(chan transport.Frame, 256),
		connected: make(chan struct{}, 8),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	tb.Cleanup(p.Close)
	return p
}

// URL returns the ws:// endpoint of the peer.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	init, err := transport.UnmarshalFrame(data)
	if err != nil || init.Type != transport.MsgConnectionInit {
		return
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	if !p.noAck {
		if err := p.Send(transport.Frame{Type: transport.MsgConnectionAck}); err != nil {
			return
		}
	}
	select {
	case p.connected <- struct{}{}:
	default:
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := transport.UnmarshalFrame(data)
		if err != nil {
			continue
		}
		if p.responder != nil {
			p.responder(p, f)
		}
		p.frames <- f
	}
}

// WaitConnected blocks until a client has sent connection_init.
func (p *Peer) WaitConnected(tb testing.TB) {
	tb.Helper()
	select {
	case <-p.connected:
	case <-time.After(Timeout):
		tb.Fatal("timed out waiting for client connection")
	}
}

// Send writes a raw frame to the connected client.
func (p *Peer) Send(f transport.Frame) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}

	data, err := transport.MarshalFrame(f)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendRaw writes bytes as a text message without framing.
func (p *Peer) SendRaw(data string) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(data))
}

// Next sends a next frame whose data is the given JSON object.
func (p *Peer) Next(id, data string) error {
	return p.Send(transport.Frame{
		ID:      id,
		Type:    transport.MsgNext,
		Payload: json.RawMessage(`{"data":` + data + `}`),
	})
}

// NextErrors sends a next frame carrying only GraphQL errors.
func (p *Peer) NextErrors(id string, messages ...string) error {
	errs := make([]transport.GraphQLError, 0, len(messages))
	for _, m := range messages {
		errs = append(errs, transport.GraphQLError{Message: m})
	}
	raw, err := sonic.ConfigStd.Marshal(transport.NextPayload{Errors: errs})
	if err != nil {
		return err
	}
	return p.Send(transport.Frame{ID: id, Type: transport.MsgNext, Payload: raw})
}

// Error sends an error frame for operation id.
func (p *Peer) Error(id, message string) error {
	raw, err := sonic.ConfigStd.Marshal([]transport.GraphQLError{{Message: message}})
	if err != nil {
		return err
	}
	return p.Send(transport.Frame{ID: id, Type: transport.MsgError, Payload: raw})
}

// Complete sends a complete frame for operation id.
func (p *Peer) Complete(id string) error {
	return p.Send(transport.Complete(id))
}

// Expect returns the next received frame of type typ, skipping others.
func (p *Peer) Expect(tb testing.TB, typ string) transport.Frame {
	tb.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case f := <-p.frames:
			if f.Type == typ {
				return f
			}
		case <-deadline:
			tb.Fatalf("timed out waiting for %s frame", typ)
			return transport.Frame{}
		}
	}
}

// ExpectNone fails tb if a frame of type typ arrives within d.
func (p *Peer) ExpectNone(tb testing.TB, typ string, d time.Duration) {
	tb.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-p.frames:
			if f.Type == typ {
				tb.Fatalf("unexpected %s frame for %s", typ, f.ID)
			}
		case <-deadline:
			return
		}
	}
}

// Drop closes the client connection without a close handshake.
func (p *Peer) Drop() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close drops the client and stops the server.
func (p *Peer) Close() {
	p.Drop()
	p.server.Close()
}
