package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	m "github.com/example/rent-payments-poc/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Dispatcher decouples emitting from publishing. Emit never blocks the
// caller; a full buffer drops the event.
type Dispatcher struct {
	pub    Publisher
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan PaymentResolved
	done   chan struct{}
}

func NewDispatcher(pub Publisher, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		pub:    pub,
		logger: logger,
		ch:     make(chan PaymentResolved, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues evt and reports whether it was accepted.
func (d *Dispatcher) Emit(evt PaymentResolved) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(evt, "dispatcher closed")
		return false
	}
	select {
	case d.ch <- evt:
		return true
	default:
		d.drop(evt, "buffer full")
		return false
	}
}

func (d *Dispatcher) drop(evt PaymentResolved, reason string) {
	m.IncEventsDropped()
	d.logger.Warn("payment event dropped",
		zap.String("reason", reason),
		zap.String("correlation_id", evt.CorrelationID),
		zap.String("state", evt.State))
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for evt := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.pub.Publish(ctx, evt); err != nil {
			m.IncEventsDropped()
			d.logger.Error("publish payment event",
				zap.Error(err),
				zap.String("event_id", evt.EventID),
				zap.String("correlation_id", evt.CorrelationID))
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
