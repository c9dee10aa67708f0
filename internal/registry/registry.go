// Package registry tracks active operations on a multiplexed connection and
// routes inbound frames to their handlers by operation id.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ibs-source/livesync/internal/transport"
)

// ErrDuplicateOperation is returned when an operation id is already active.
var ErrDuplicateOperation = errors.New("duplicate operation")

// Kind distinguishes long-lived subscriptions from one-shot commands.
type Kind int

const (
	Subscription Kind = iota
	Command
)

func (k Kind) String() string {
	if k == Command {
		return "command"
	}
	return "subscription"
}

// Handler processes the frames of one operation.
type Handler func(transport.Frame)

type entry struct {
	kind    Kind
	handler Handler
}

// Registry maps operation ids to handlers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds an operation. The id must not be active.
func (r *Registry) Register(id string, kind Kind, h Handler) error {
	if id == "" {
		return fmt.Errorf("operation id cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("operation %s: handler cannot be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: %s already registered as %s", ErrDuplicateOperation, id, existing.kind)
	}
	r.entries[id] = entry{kind: kind, handler: h}
	return nil
}

// Unregister removes an operation. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Dispatch hands f to the handler registered under id and reports whether
// one was found. The handler runs on the caller's goroutine without the
// registry lock held, so it may Register or Unregister.
func (r *Registry) Dispatch(id string, f transport.Frame) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.handler(f)
	return true
}

// Has reports whether id is active.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// IDs returns the sorted ids of active operations of the given kind.
func (r *Registry) IDs(kind Kind) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.kind == kind {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of active operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
