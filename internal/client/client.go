// Package client keeps a live local mirror of the peer's topics over one
// multiplexed transport and sends commands whose effects arrive as events.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
	"github.com/ibs-source/livesync/internal/model"
	"github.com/ibs-source/livesync/internal/reducer"
	"github.com/ibs-source/livesync/internal/registry"
	"github.com/ibs-source/livesync/internal/transport"
)

type commandResult struct {
	msg model.Message
	err error
}

type observer struct {
	id uint64
	fn func(model.Change)
}

// Client is the synchronization façade. One client owns one transport.
type Client struct {
	transport   transport.Transport
	registry    *registry.Registry
	stopTimeout time.Duration
	newID       func() string
	log         *log.Logger

	mu           sync.Mutex
	state        reducer.State
	subs         map[model.Topic]string
	commands     map[string]chan commandResult
	observers    []observer
	nextObserver uint64
	started      bool
	stopped      bool
	startCancel  context.CancelFunc
	err          error

	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
	closeErr  error
	doneOnce  sync.Once
	done      chan struct{}
}

// Option customizes a Client.
type Option func(*Client)

// WithIDGenerator replaces the UUID operation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New creates a client over t. Nothing is sent until Start.
func New(t transport.Transport, cfg *config.ClientConfig, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		transport:   t,
		registry:    registry.New(),
		stopTimeout: cfg.StopTimeout,
		newID:       uuid.NewString,
		log:         logger,
		subs:        make(map[model.Topic]string),
		commands:    make(map[string]chan commandResult),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	t.OnFrame(c.dispatch)
	t.OnStateChange(c.onTransportState)
	return c
}

// Start opens the transport and subscribes to every topic.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStartup, ErrClientStopped)
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("%w: already started", ErrStartup)
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.startCancel = cancel
	c.mu.Unlock()
	defer cancel()

	if err := c.transport.Open(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	for _, op := range topicOperations {
		if c.isStopped() {
			return fmt.Errorf("%w: %w", ErrStartup, ErrClientStopped)
		}
		if err := c.subscribe(op); err != nil {
			_ = c.closeTransport()
			return fmt.Errorf("%w: subscribe %s: %w", ErrStartup, op.topic, err)
		}
	}

	c.log.Info("Sync client started with %d subscriptions", len(topicOperations))
	return nil
}

func (c *Client) subscribe(op topicOperation) error {
	id := c.newID()
	if err := c.registry.Register(id, registry.Subscription, c.subscriptionHandler(op.topic, id)); err != nil {
		return err
	}

	f, err := transport.Subscribe(id, transport.SubscribePayload{
		Query:         op.query,
		OperationName: op.operationName,
	})
	if err == nil {
		c.mu.Lock()
		c.subs[op.topic] = id
		c.mu.Unlock()
		err = c.transport.Send(f)
	}
	if err != nil {
		c.forgetSubscription(op.topic, id)
		return err
	}

	c.log.DebugWithFields(log.Operation(id, op.topic.String()), "Subscribed")
	return nil
}

func (c *Client) forgetSubscription(topic model.Topic, id string) {
	c.registry.Unregister(id)
	c.mu.Lock()
	if c.subs[topic] == id {
		delete(c.subs, topic)
	}
	c.mu.Unlock()
}

// dispatch is the transport's single inbound frame handler
func (c *Client) dispatch(f transport.Frame) {
	if !c.registry.Dispatch(f.ID, f) {
		c.log.Debug("Dropping %s frame for unknown operation %q", f.Type, f.ID)
	}
}

func (c *Client) subscriptionHandler(topic model.Topic, id string) registry.Handler {
	fields := log.Operation(id, topic.String())
	return func(f transport.Frame) {
		switch f.Type {
		case transport.MsgNext:
			c.handleEvent(topic, fields, f)
		case transport.MsgError:
			c.forgetSubscription(topic, id)
			c.log.ErrorWithFields(fields, "Subscription rejected by peer: %s",
				strings.Join(errorMessages(transport.DecodeErrors(f)), "; "))
		case transport.MsgComplete:
			c.forgetSubscription(topic, id)
			c.log.WarnWithFields(fields, "Subscription completed by peer")
		}
	}
}

func (c *Client) handleEvent(topic model.Topic, fields log.Fields, f transport.Frame) {
	p, err := transport.DecodeNext(f)
	if err != nil {
		c.log.WarnWithFields(fields, "Dropping event: %v", err)
		return
	}
	if len(p.Errors) > 0 {
		c.log.WarnWithFields(fields, "Event carried errors: %s", strings.Join(errorMessages(p.Errors), "; "))
	}

	payload, err := extractField(p.Data, topic.String())
	if err != nil {
		c.log.WarnWithFields(fields, "Dropping event: %v", err)
		return
	}
	c.apply(model.Envelope{Topic: topic, Payload: payload}, fields)
}

// apply folds env into the mirrored state and notifies observers outside the lock
func (c *Client) apply(env model.Envelope, fields log.Fields) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	next, change, err := reducer.Apply(c.state, env)
	if err != nil {
		c.mu.Unlock()
		c.log.WarnWithFields(fields, "Dropping malformed event: %v", err)
		return
	}
	c.state = next
	observers := make([]observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	if change == nil {
		c.log.DebugWithFields(fields, "Duplicate event ignored")
		return
	}
	for _, o := range observers {
		o.fn(change.Clone())
	}
}

// CurrentMessages returns a deep copy of the messages in first-seen order.
func (c *Client) CurrentMessages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.state.Messages))
	for i, m := range c.state.Messages {
		out[i] = m.Clone()
	}
	return out
}

// CurrentStatus returns the latest status. ok is false until the first
// systemStatusChanged event arrives.
func (c *Client) CurrentStatus() (status model.SystemStatus, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == nil {
		return model.SystemStatus{}, false
	}
	return *c.state.Status, true
}

// CurrentSettings returns the latest settings. ok is false until the first
// settingsUpdated event arrives.
func (c *Client) CurrentSettings() (settings model.Settings, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Settings == nil {
		return model.Settings{}, false
	}
	return *c.state.Settings, true
}

// Pending returns the number of commands still waiting for a response.
// Zero means nothing is being sent.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands)
}

// OnChange registers fn to be called after every slice update, on the
// dispatch goroutine. The returned func removes it.
func (c *Client) OnChange(fn func(model.Change)) (cancel func()) {
	c.mu.Lock()
	c.nextObserver++
	id := c.nextObserver
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// SendCommand sends text as a new message and waits for the peer's direct
// response. The created message reaches CurrentMessages only through the
// messageAdded stream.
func (c *Client) SendCommand(ctx context.Context, text string) (model.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return model.Message{}, ErrEmptyCommand
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return model.Message{}, ErrClientStopped
	}
	id := c.newID()
	result := make(chan commandResult, 1)
	if _, dup := c.commands[id]; dup || c.registry.Has(id) {
		c.mu.Unlock()
		return model.Message{}, &CommandError{OperationID: id, Err: fmt.Errorf("%w: %s", registry.ErrDuplicateOperation, id)}
	}
	c.commands[id] = result
	c.mu.Unlock()

	if err := c.registry.Register(id, registry.Command, c.commandHandler(id)); err != nil {
		c.dropCommand(id)
		return model.Message{}, &CommandError{OperationID: id, Err: err}
	}

	f, err := transport.Subscribe(id, transport.SubscribePayload{
		Query:         sendMessageMutation,
		OperationName: sendMessageOperation,
		Variables:     map[string]any{"text": trimmed},
	})
	if err == nil {
		err = c.transport.Send(f)
	}
	if err != nil {
		if !c.dropCommand(id) {
			// Stop or a transport failure already rejected it
			res := <-result
			return res.msg, res.err
		}
		return model.Message{}, &CommandError{OperationID: id, Err: err}
	}
	c.log.DebugWithFields(log.Fields{log.FieldOperation: id}, "Command sent")

	select {
	case res := <-result:
		return res.msg, res.err
	case <-ctx.Done():
		if c.dropCommand(id) {
			_ = c.transport.Send(transport.Complete(id))
			return model.Message{}, ctx.Err()
		}
		res := <-result
		return res.msg, res.err
	}
}

func (c *Client) commandHandler(id string) registry.Handler {
	return func(f transport.Frame) {
		switch f.Type {
		case transport.MsgNext:
			c.resolve(id, decodeCommandResult(id, f))
		case transport.MsgError:
			c.resolve(id, commandResult{err: &CommandError{
				OperationID: id,
				Messages:    errorMessages(transport.DecodeErrors(f)),
			}})
		case transport.MsgComplete:
			c.resolve(id, commandResult{err: &CommandError{OperationID: id, Err: errNoResult}})
		}
	}
}

func decodeCommandResult(id string, f transport.Frame) commandResult {
	p, err := transport.DecodeNext(f)
	if err != nil {
		return commandResult{err: &CommandError{OperationID: id, Err: err}}
	}
	if len(p.Errors) > 0 {
		return commandResult{err: &CommandError{OperationID: id, Messages: errorMessages(p.Errors)}}
	}
	raw, err := extractField(p.Data, sendMessageField)
	if err != nil {
		return commandResult{err: &CommandError{OperationID: id, Err: err}}
	}
	m, err := reducer.DecodeMessage(raw)
	if err != nil {
		return commandResult{err: &CommandError{OperationID: id, Err: err}}
	}
	return commandResult{msg: m}
}

// resolve delivers res to the waiting caller once; later frames for id are dropped
func (c *Client) resolve(id string, res commandResult) {
	c.registry.Unregister(id)
	c.mu.Lock()
	ch, ok := c.commands[id]
	delete(c.commands, id)
	c.mu.Unlock()
	if ok {
		ch <- res
	}
}

// dropCommand forgets id without resolving it and reports whether it was
// still pending
func (c *Client) dropCommand(id string) bool {
	c.registry.Unregister(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.commands[id]
	delete(c.commands, id)
	return ok
}

// rejectCommands fails every outstanding command with err
func (c *Client) rejectCommands(err func(id string) error) {
	c.mu.Lock()
	pending := c.commands
	c.commands = make(map[string]chan commandResult)
	c.mu.Unlock()

	for id, ch := range pending {
		c.registry.Unregister(id)
		ch <- commandResult{err: err(id)}
	}
}

// Stop tears the client down: unsubscribes each topic on a best-effort
// basis, rejects outstanding commands with ErrClientStopped and closes the
// transport. It is safe to call at any time and more than once.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		cancel := c.startCancel
		ids := make([]string, 0, len(c.subs))
		for _, op := range topicOperations {
			if id, ok := c.subs[op.topic]; ok {
				ids = append(ids, id)
			}
		}
		c.subs = make(map[model.Topic]string)
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.log.Info("Stopping sync client: %d subscriptions, %d commands outstanding",
			len(c.registry.IDs(registry.Subscription)), len(c.registry.IDs(registry.Command)))

		c.unsubscribe(ids)
		c.rejectCommands(func(string) error { return ErrClientStopped })
		c.stopErr = c.closeTransport()
		c.markDone(nil)

		if n := c.registry.Len(); n > 0 {
			c.log.Warn("%d operations still registered after stop", n)
		}
		c.log.Info("Sync client stopped")
	})
	return c.stopErr
}

// unsubscribe sends complete for each id, bounded by the stop timeout
func (c *Client) unsubscribe(ids []string) {
	for _, id := range ids {
		c.registry.Unregister(id)
	}
	if len(ids) == 0 || c.transport.State() != transport.Open {
		return
	}

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for _, id := range ids {
			if err := c.transport.Send(transport.Complete(id)); err != nil {
				c.log.Debug("Failed to unsubscribe %s: %v", id, err)
				return
			}
		}
	}()

	select {
	case <-sent:
	case <-time.After(c.stopTimeout):
		c.log.Warn("Unsubscribe did not finish within %v", c.stopTimeout)
	}
}

func (c *Client) closeTransport() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

func (c *Client) onTransportState(s transport.State, err error) {
	switch s {
	case transport.Errored:
		if err == nil {
			err = transport.ErrConnection
		}
		c.rejectCommands(func(id string) error { return &CommandError{OperationID: id, Err: err} })
		c.markDone(err)
	case transport.Closed:
		c.markDone(nil)
	}
}

func (c *Client) markDone(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Done is closed when the connection ends, by Stop or by a peer drop.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the connection error after Done is closed, nil after a clean stop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
