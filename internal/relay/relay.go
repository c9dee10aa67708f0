// Package relay forwards slice changes from the sync client to external
// sinks such as MQTT topics and Redis streams.
package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
	"github.com/ibs-source/livesync/internal/model"
)

// Sink receives encoded records. Publish must honour ctx.
type Sink interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Source emits change notifications. *client.Client implements it.
type Source interface {
	OnChange(fn func(model.Change)) (cancel func())
}

// Relay queues changes without blocking the source and publishes them to
// every sink on a single worker, so records leave in arrival order.
type Relay struct {
	sinks          []Sink
	encoder        Encoder
	queue          chan model.Change
	publishTimeout time.Duration
	entropy        io.Reader
	now            func() time.Time
	log            *log.Logger

	mu       sync.Mutex
	detaches []func()

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a relay. At least one sink is required.
func New(cfg *config.RelayConfig, sinks []Sink, logger *log.Logger) (*Relay, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("relay needs at least one sink")
	}
	encoder, err := NewEncoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	capacity := cfg.BufferCapacity
	if capacity < 1 {
		capacity = 1
	}

	return &Relay{
		sinks:          sinks,
		encoder:        encoder,
		queue:          make(chan model.Change, capacity),
		publishTimeout: cfg.PublishTimeout,
		entropy:        ulid.Monotonic(rand.Reader, 0),
		now:            time.Now,
		log:            logger,
	}, nil
}

// Attach subscribes the relay to src. Detached by Close.
func (r *Relay) Attach(src Source) {
	cancel := src.OnChange(r.enqueue)
	r.mu.Lock()
	r.detaches = append(r.detaches, cancel)
	r.mu.Unlock()
}

// enqueue runs on the source's dispatch goroutine and must never block it
func (r *Relay) enqueue(ch model.Change) {
	select {
	case r.queue <- ch:
	default:
		n := r.dropped.Add(1)
		r.log.WarnWithFields(log.Fields{log.FieldTopic: ch.Topic.String()},
			"Relay queue full, dropping change (%d dropped so far)", n)
	}
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (r *Relay) startLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run publishes queued changes until ctx is canceled, then flushes what is
// still queued.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("Starting relay with %d sink(s), %s encoding", len(r.sinks), r.encoder.Name())

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	r.startLoop(ctx, &wg, "publish", r.publishLoop, errCh)

	select {
	case <-ctx.Done():
		wg.Wait()
		r.flush()
		r.log.Info("Relay stopped: %d published, %d failed, %d dropped",
			r.published.Load(), r.failed.Load(), r.dropped.Load())
		return ctx.Err()
	case err := <-errCh:
		r.log.Error("Relay error: %v", err)
		wg.Wait()
		return err
	}
}

// publishLoop drains the queue on one goroutine
func (r *Relay) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch := <-r.queue:
			_ = r.publish(ctx, ch)
		}
	}
}

// flush publishes whatever is left in the queue with fresh deadlines
func (r *Relay) flush() {
	for {
		select {
		case ch := <-r.queue:
			_ = r.publish(context.Background(), ch)
		default:
			return
		}
	}
}

// publish encodes ch once and fans it out to every sink concurrently.
// A failing sink does not cancel the others.
func (r *Relay) publish(ctx context.Context, ch model.Change) error {
	rec, err := r.record(ch)
	if err != nil {
		r.failed.Add(1)
		r.log.Error("Failed to build relay record: %v", err)
		return err
	}
	payload, err := r.encoder.Encode(rec)
	if err != nil {
		r.failed.Add(1)
		r.log.Error("Failed to encode relay record %s: %v", rec.ID, err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Publish(ctx, rec.Topic.String(), payload); err != nil {
				r.log.ErrorWithFields(log.Fields{log.FieldSink: sink.Name(), log.FieldTopic: rec.Topic.String()},
					"Failed to relay record %s: %v", rec.ID, err)
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.failed.Add(1)
		return err
	}

	r.published.Add(1)
	r.log.DebugWithFields(log.Fields{log.FieldTopic: rec.Topic.String()}, "Relayed record %s", rec.ID)
	return nil
}

func (r *Relay) record(ch model.Change) (Record, error) {
	now := r.now()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return Record{}, fmt.Errorf("failed to generate record id: %w", err)
	}
	return Record{
		ID:        id.String(),
		Topic:     ch.Topic,
		EmittedAt: now,
		Data:      ch.Value,
	}, nil
}

// Stats returns published, failed and dropped record counts.
func (r *Relay) Stats() (published, failed, dropped uint64) {
	return r.published.Load(), r.failed.Load(), r.dropped.Load()
}

// Close detaches from every source and closes the sinks. Call it after Run
// has returned.
func (r *Relay) Close() error {
	r.mu.Lock()
	detaches := r.detaches
	r.detaches = nil
	r.mu.Unlock()

	for _, detach := range detaches {
		detach()
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
