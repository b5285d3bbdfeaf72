// Package channel provides bounded hand-off queues between producers that
// must never block and a single slow consumer.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Outbox is a bounded FIFO with a drop-on-full Offer for producers and a
// Drain loop for exactly one consumer.
type Outbox[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool

	offered   atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewOutbox creates an outbox holding at most size pending items.
func NewOutbox[T any](size int) *Outbox[T] {
	if size < 1 {
		size = 1
	}
	return &Outbox[T]{ch: make(chan T, size)}
}

// Offer enqueues v without blocking. It reports false when the outbox is
// full or closed; the item is then counted as dropped.
func (o *Outbox[T]) Offer(v T) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	o.offered.Add(1)
	if o.closed {
		o.dropped.Add(1)
		return false
	}
	select {
	case o.ch <- v:
		return true
	default:
		o.dropped.Add(1)
		return false
	}
}

// Close stops accepting items. Items already queued are still drained.
// Close is idempotent.
func (o *Outbox[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}

// Drain hands queued items to fn in order until the outbox is closed and
// empty, fn fails, or ctx is done.
func (o *Outbox[T]) Drain(ctx context.Context, fn func(T) error) error {
	for {
		select {
		case v, ok := <-o.ch:
			if !ok {
				return nil
			}
			if err := fn(v); err != nil {
				return err
			}
			o.delivered.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns outbox counters.
func (o *Outbox[T]) Stats() OutboxStats {
	return OutboxStats{
		Capacity:  cap(o.ch),
		Pending:   len(o.ch),
		Offered:   o.offered.Load(),
		Delivered: o.delivered.Load(),
		Dropped:   o.dropped.Load(),
	}
}

// OutboxStats contains outbox counters.
type OutboxStats struct {
	Capacity  int   `json:"capacity"`
	Pending   int   `json:"pending"`
	Offered   int64 `json:"offered"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}
