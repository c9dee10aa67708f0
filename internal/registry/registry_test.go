package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/livesync/internal/transport"
)

func noop(transport.Frame) {}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("op-1", Subscription, noop))

	err := r.Register("op-1", Command, noop)
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_Invalid(t *testing.T) {
	r := New()
	assert.Error(t, r.Register("", Command, noop))
	assert.Error(t, r.Register("op", Command, nil))
	assert.Zero(t, r.Len())
}

func TestDispatch(t *testing.T) {
	r := New()
	var got []transport.Frame
	require.NoError(t, r.Register("op-1", Subscription, func(f transport.Frame) { got = append(got, f) }))

	assert.True(t, r.Dispatch("op-1", transport.Frame{ID: "op-1", Type: transport.MsgNext}))
	assert.False(t, r.Dispatch("unknown", transport.Frame{ID: "unknown", Type: transport.MsgNext}))

	require.Len(t, got, 1)
	assert.Equal(t, transport.MsgNext, got[0].Type)
}

func TestDispatch_HandlerMayUnregisterItself(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("cmd", Command, func(transport.Frame) { r.Unregister("cmd") }))

	assert.True(t, r.Dispatch("cmd", transport.Frame{Type: transport.MsgComplete}))
	assert.False(t, r.Has("cmd"))
	assert.False(t, r.Dispatch("cmd", transport.Frame{Type: transport.MsgComplete}))
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("op", Command, noop))

	r.Unregister("op")
	r.Unregister("op")
	r.Unregister("never-registered")

	assert.Zero(t, r.Len())
	require.NoError(t, r.Register("op", Command, noop), "an id can be reused after removal")
}

func TestIDs(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("s2", Subscription, noop))
	require.NoError(t, r.Register("s1", Subscription, noop))
	require.NoError(t, r.Register("c1", Command, noop))

	assert.Equal(t, []string{"s1", "s2"}, r.IDs(Subscription))
	assert.Equal(t, []string{"c1"}, r.IDs(Command))
	assert.Equal(t, "command", Command.String())
	assert.Equal(t, "subscription", Subscription.String())
}

func TestConcurrentRegisterDispatch(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("op-%d", i)
			assert.NoError(t, r.Register(id, Command, noop))
			assert.True(t, r.Dispatch(id, transport.Frame{}))
			r.Unregister(id)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
