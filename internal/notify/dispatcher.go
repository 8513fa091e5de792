// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Dispatcher defaults.
const (
	DefaultWorkers    = 2
	DefaultQueueSize  = 256
	DefaultMaxRetries = 3
	DefaultBackoff    = 200 * time.Millisecond
	deliveryTimeout   = 10 * time.Second
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the buffer between Send and the workers.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithRetry sets the retry budget and the base of the exponential backoff.
func WithRetry(maxRetries int, base time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxRetries >= 0 {
			d.maxRetries = maxRetries
		}
		if base > 0 {
			d.backoff = base
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher queues notifications and delivers them to a Sink from a fixed
// pool of workers. Send never blocks: when the queue is full the notification
// is dropped and logged.
type Dispatcher struct {
	sink       Sink
	workers    int
	queueSize  int
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	queue chan Notification

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over sink. Call Start before Send.
func NewDispatcher(sink Sink, opts ...DispatcherOption) (*Dispatcher, error) {
	if sink == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("sink is required")
	}
	d := &Dispatcher{
		sink:       sink,
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan Notification, d.queueSize)
	return d, nil
}

// Start launches the workers. ctx bounds retry waits; Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Send implements auth.Notifier.
func (d *Dispatcher) Send(_ context.Context, recipient, kind string, payload map[string]string) {
	d.Enqueue(New(recipient, kind, payload))
}

// Enqueue queues n for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- n:
		QueueDepth.Inc()
		return true
	default:
		d.drop(n, "queue full")
		return false
	}
}

// Close stops accepting notifications and waits for the workers to drain the
// queue, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("NOTIFY_CLOSE_TIMEOUT").Wrap(ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		QueueDepth.Dec()
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	backoff := retry.WithMaxRetries(uint64(d.maxRetries), retry.NewExponential(d.backoff)) //nolint:gosec // maxRetries is non-negative

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()
		if err := d.sink.Deliver(attemptCtx, n); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		Notifications.WithLabelValues(n.Kind, OutcomeFailed).Inc()
		d.logger.WarnContext(ctx, "notification delivery failed",
			"notification_id", n.ID.String(),
			"kind", n.Kind,
			"attempts", attempts,
			"error", err)
		return
	}
	Notifications.WithLabelValues(n.Kind, OutcomeDelivered).Inc()
	d.logger.DebugContext(ctx, "notification delivered",
		"notification_id", n.ID.String(),
		"kind", n.Kind,
		"attempts", attempts)
}

func (d *Dispatcher) drop(n Notification, reason string) {
	Notifications.WithLabelValues(n.Kind, OutcomeDropped).Inc()
	d.logger.Warn("notification dropped",
		"notification_id", n.ID.String(),
		"kind", n.Kind,
		"reason", reason)
}
