// Package transport carries graphql-transport-ws frames over one persistent
// WebSocket connection to the sync peer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
)

var (
	// ErrConnection is returned when the connection cannot be established
	// and reported when an open connection drops.
	ErrConnection = errors.New("connection error")
	// ErrNotOpen is returned by Send when the transport cannot write.
	ErrNotOpen = errors.New("transport not open")
)

// FrameHandler receives inbound operation frames (next, error, complete).
type FrameHandler func(Frame)

// StateHandler observes lifecycle transitions. err is set for Errored.
type StateHandler func(s State, err error)

// Transport is one persistent, multiplexed connection to the peer.
type Transport interface {
	Open(ctx context.Context) error
	Send(f Frame) error
	OnFrame(h FrameHandler)
	OnStateChange(h StateHandler)
	State() State
	Close() error
}

// Ensure WebSocket implements Transport
var _ Transport = (*WebSocket)(nil)

// WebSocket is a Transport backed by gorilla/websocket.
type WebSocket struct {
	endpoint         string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	keepAlive        time.Duration
	readLimit        int64
	dialer           *websocket.Dialer
	log              *log.Logger

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	done       chan struct{}
	onFrame    FrameHandler
	onState    StateHandler

	writeMu sync.Mutex
}

// NewWebSocket creates a transport for cfg.Endpoint. No I/O happens until Open.
func NewWebSocket(cfg *config.TransportConfig, logger *log.Logger) *WebSocket {
	return &WebSocket{
		endpoint:         cfg.Endpoint,
		handshakeTimeout: cfg.HandshakeTimeout,
		writeTimeout:     cfg.WriteTimeout,
		keepAlive:        cfg.KeepAlive,
		readLimit:        cfg.ReadLimit,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{Subprotocol},
		},
		log: logger,
	}
}

// OnFrame sets the single inbound frame dispatcher. Must be called before Open.
func (t *WebSocket) OnFrame(h FrameHandler) {
	t.mu.Lock()
	t.onFrame = h
	t.mu.Unlock()
}

// OnStateChange sets the lifecycle observer.
func (t *WebSocket) OnStateChange(h StateHandler) {
	t.mu.Lock()
	t.onState = h
	t.mu.Unlock()
}

// State returns the current lifecycle state.
func (t *WebSocket) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open dials the peer and completes the connection_init handshake.
func (t *WebSocket) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Idle {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot open transport in state %s", ErrConnection, state)
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	defer cancel()
	t.state = Connecting
	t.cancelDial = cancel
	t.mu.Unlock()
	t.emit(Connecting, nil)

	t.log.Debug("Dialing %s", t.endpoint)
	conn, resp, err := t.dialer.DialContext(dialCtx, t.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return t.failOpen(fmt.Errorf("%w: dial %s: %v", ErrConnection, t.endpoint, err))
	}
	if conn.Subprotocol() != Subprotocol {
		_ = conn.Close()
		return t.failOpen(fmt.Errorf("%w: peer did not accept sub-protocol %s", ErrConnection, Subprotocol))
	}

	// Closing the socket is the only way to interrupt a blocked handshake read.
	stop := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	err = t.handshake(conn)
	if !stop() {
		_ = conn.Close()
		if err == nil {
			err = dialCtx.Err()
		}
		return t.failOpen(fmt.Errorf("%w: handshake interrupted: %v", ErrConnection, err))
	}
	if err != nil {
		_ = conn.Close()
		return t.failOpen(fmt.Errorf("%w: handshake: %v", ErrConnection, err))
	}

	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}
	t.armKeepAlive(conn)

	t.mu.Lock()
	if t.state != Connecting {
		// Close ran while the handshake was in flight
		t.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%w: transport closed during open", ErrConnection)
	}
	t.conn = conn
	t.cancelDial = nil
	t.done = make(chan struct{})
	done := t.done
	t.state = Open
	t.mu.Unlock()
	t.emit(Open, nil)

	go t.readLoop(conn)
	if t.keepAlive > 0 {
		go t.pingLoop(conn, done)
	}
	return nil
}

// handshake sends connection_init and waits for connection_ack, answering
// any ping the peer sends first.
func (t *WebSocket) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(t.handshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	if err := writeFrame(conn, Frame{Type: MsgConnectionInit}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}
		f, err := UnmarshalFrame(data)
		if err != nil {
			return err
		}
		switch f.Type {
		case MsgConnectionAck:
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
			return nil
		case MsgPing:
			if err := writeFrame(conn, Frame{Type: MsgPong}); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		default:
			return fmt.Errorf("unexpected %s frame before connection_ack", f.Type)
		}
	}
}

// armKeepAlive installs the read deadline and pong handler when pings are enabled
func (t *WebSocket) armKeepAlive(conn *websocket.Conn) {
	if t.keepAlive <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * t.keepAlive))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * t.keepAlive))
	})
}

// failOpen records a failed Open unless Close already won the race
func (t *WebSocket) failOpen(err error) error {
	t.mu.Lock()
	if t.state != Connecting {
		t.mu.Unlock()
		return err
	}
	t.state = Errored
	t.cancelDial = nil
	t.mu.Unlock()

	t.log.Warn("Failed to open transport: %v", err)
	t.emit(Errored, err)
	return err
}

// Send writes one frame. Safe for concurrent use.
func (t *WebSocket) Send(f Frame) error {
	t.mu.Lock()
	conn, state := t.conn, t.state
	t.mu.Unlock()

	if state != Open || conn == nil {
		return fmt.Errorf("%w: state is %s", ErrNotOpen, state)
	}

	data, err := MarshalFrame(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write %s frame: %v", ErrNotOpen, f.Type, err)
	}
	return nil
}

// readLoop dispatches inbound frames in arrival order until the connection ends
func (t *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}
		if t.keepAlive > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * t.keepAlive))
		}

		f, err := UnmarshalFrame(data)
		if err != nil {
			t.log.Warn("Dropping undecodable frame: %v", err)
			continue
		}

		switch f.Type {
		case MsgPing:
			if err := t.Send(Frame{Type: MsgPong}); err != nil {
				t.log.Debug("Failed to answer ping: %v", err)
			}
		case MsgPong:
		case MsgNext, MsgError, MsgComplete:
			t.mu.Lock()
			handler := t.onFrame
			t.mu.Unlock()
			if handler != nil {
				handler(f)
			}
		default:
			t.log.Debug("Ignoring %s frame", f.Type)
		}
	}
}

// pingLoop sends WebSocket ping control frames until done is closed
func (t *WebSocket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(t.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.log.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}

// fail moves an open transport to Errored after the connection dropped
func (t *WebSocket) fail(cause error) {
	t.mu.Lock()
	if t.state != Open {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.conn = nil
	t.state = Errored
	t.stopLoops()
	t.mu.Unlock()

	_ = conn.Close()
	err := fmt.Errorf("%w: %v", ErrConnection, cause)
	t.log.Error("Transport connection lost: %v", cause)
	t.emit(Errored, err)
}

// stopLoops must be called with t.mu held
func (t *WebSocket) stopLoops() {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

// Close releases the connection. It is idempotent, never waits for the peer
// beyond one close frame write, and cancels an in-flight Open.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.state == Closing || t.state.Terminal() {
		t.mu.Unlock()
		return nil
	}

	switch t.state {
	case Idle:
		t.state = Closed
		t.mu.Unlock()
		t.emit(Closed, nil)
		return nil

	case Connecting:
		t.state = Closed
		cancel := t.cancelDial
		t.cancelDial = nil
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		t.emit(Closed, nil)
		return nil
	}

	conn := t.conn
	t.conn = nil
	t.state = Closing
	t.stopLoops()
	t.mu.Unlock()
	t.emit(Closing, nil)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout)); err != nil {
		t.log.Debug("Failed to send close frame: %v", err)
	}
	err := conn.Close()

	t.mu.Lock()
	t.state = Closed
	t.mu.Unlock()
	t.emit(Closed, nil)

	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (t *WebSocket) emit(s State, err error) {
	t.mu.Lock()
	handler := t.onState
	t.mu.Unlock()

	t.log.DebugWithFields(log.Fields{log.FieldState: s.String()}, "Transport state changed")
	if handler != nil {
		handler(s, err)
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
