package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ibs-source/livesync/internal/transport"
)

// fakeTransport records sent frames and lets tests inject inbound frames.
type fakeTransport struct {
	mu         sync.Mutex
	state      transport.State
	openErr    error
	sendErr    error
	sent       []transport.Frame
	closeCalls int
	onFrame    transport.FrameHandler
	onState    transport.StateHandler
	sentCh     chan transport.Frame
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sentCh: make(chan transport.Frame, 64)}
}

func (f *fakeTransport) Open(context.Context) error {
	f.mu.Lock()
	if f.openErr != nil {
		f.state = transport.Errored
		f.mu.Unlock()
		f.emit(transport.Errored, f.openErr)
		return f.openErr
	}
	f.state = transport.Open
	f.mu.Unlock()
	f.emit(transport.Open, nil)
	return nil
}

func (f *fakeTransport) Send(fr transport.Frame) error {
	f.mu.Lock()
	if f.state != transport.Open {
		f.mu.Unlock()
		return transport.ErrNotOpen
	}
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, fr)
	f.mu.Unlock()
	f.sentCh <- fr
	return nil
}

func (f *fakeTransport) OnFrame(h transport.FrameHandler) { f.onFrame = h }

func (f *fakeTransport) OnStateChange(h transport.StateHandler) { f.onState = h }

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closeCalls++
	already := f.state == transport.Closed
	f.state = transport.Closed
	f.mu.Unlock()
	if !already {
		f.emit(transport.Closed, nil)
	}
	return nil
}

func (f *fakeTransport) emit(s transport.State, err error) {
	if f.onState != nil {
		f.onState(s, err)
	}
}

// drop simulates the peer disappearing
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.state = transport.Errored
	f.mu.Unlock()
	f.emit(transport.Errored, err)
}

func (f *fakeTransport) deliver(fr transport.Frame) {
	f.onFrame(fr)
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeTransport) sentFrames() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Frame(nil), f.sent...)
}

// waitSubscribe returns the next sent subscribe frame for operationName
func (f *fakeTransport) waitSubscribe(t *testing.T, operationName string) transport.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case fr := <-f.sentCh:
			if fr.Type != transport.MsgSubscribe {
				continue
			}
			var p transport.SubscribePayload
			if err := json.Unmarshal(fr.Payload, &p); err != nil {
				t.Fatalf("invalid subscribe payload: %v", err)
			}
			if p.OperationName == operationName {
				return fr
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s subscribe", operationName)
			return transport.Frame{}
		}
	}
}

func nextFrame(id, data string) transport.Frame {
	return transport.Frame{ID: id, Type: transport.MsgNext, Payload: json.RawMessage(`{"data":` + data + `}`)}
}
