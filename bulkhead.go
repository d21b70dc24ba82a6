package gerbang

import (
	"context"
	"sync"
	"time"
)

// BulkheadConfig holds bulkhead configuration.
type BulkheadConfig struct {
	// MaxConcurrent is the number of permits available for simultaneous
	// downstream work.
	MaxConcurrent int

	// MaxWaiting bounds the FIFO wait queue. Zero picks the default;
	// a negative value disables queueing entirely, so callers arriving at
	// capacity are rejected immediately.
	MaxWaiting int

	// Timeout is how long a queued caller waits for a permit before giving
	// up.
	Timeout time.Duration
}

// Bulkhead is a bounded-concurrency admission gate with a FIFO wait queue.
// Permits are granted to waiters in strict arrival order; a caller arriving
// when both the permits and the queue are exhausted is rejected without
// suspending. Safe for concurrent use.
type Bulkhead struct {
	mu            sync.Mutex
	maxConcurrent int
	maxWaiting    int
	timeout       time.Duration
	active        int
	queue         []*bulkheadWaiter

	now func() time.Time
}

// bulkheadWaiter is one queued caller. granted is guarded by Bulkhead.mu;
// grant is closed exactly once, when the permit transfers.
type bulkheadWaiter struct {
	grant   chan struct{}
	granted bool
}

// NewBulkhead creates a bulkhead, applying defaults for zero fields:
// 64 permits, 128 queue slots, 5s wait timeout.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 64
	}
	if config.MaxWaiting == 0 {
		config.MaxWaiting = 128
	}
	if config.MaxWaiting < 0 {
		config.MaxWaiting = 0
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	return &Bulkhead{
		maxConcurrent: config.MaxConcurrent,
		maxWaiting:    config.MaxWaiting,
		timeout:       config.Timeout,
		now:           time.Now,
	}
}

// Acquire obtains a permit, queueing FIFO when none is free. It returns nil
// on success, ErrBulkheadFull when the queue is at capacity, ErrBulkheadTimeout
// when the wait deadline passes, or the context error on cancellation. No
// lock is held while suspended.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.active < b.maxConcurrent {
		b.active++
		b.mu.Unlock()
		return nil
	}
	if len(b.queue) >= b.maxWaiting {
		b.mu.Unlock()
		return ErrBulkheadFull
	}
	w := &bulkheadWaiter{grant: make(chan struct{})}
	b.queue = append(b.queue, w)
	b.mu.Unlock()

	deadline := b.now().Add(b.timeout)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-w.grant:
		// A grant that lands at or past the deadline loses the tie; the
		// permit moves on to the next waiter and this caller still times
		// out.
		if !b.now().Before(deadline) {
			return b.abandon(w, ErrBulkheadTimeout)
		}
		return nil
	case <-timer.C:
		return b.abandon(w, ErrBulkheadTimeout)
	case <-ctx.Done():
		return b.abandon(w, ctx.Err())
	}
}

// Release returns a permit. If waiters are queued the permit transfers
// directly to the head of the queue, so active never dips below the demand.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	b.releasePermitLocked()
	b.mu.Unlock()
}

// abandon removes a waiter that timed out or was cancelled. When the grant
// raced with the deadline, the tie resolves in favor of the deadline: the
// already-transferred permit is passed straight along and the caller still
// fails.
func (b *Bulkhead) abandon(w *bulkheadWaiter, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w.granted {
		b.releasePermitLocked()
		return cause
	}
	for i, queued := range b.queue {
		if queued == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			break
		}
	}
	return cause
}

func (b *Bulkhead) releasePermitLocked() {
	if len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		next.granted = true
		close(next.grant)
		return
	}
	if b.active > 0 {
		b.active--
	}
}

// Active returns the number of permits currently held.
func (b *Bulkhead) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// QueueDepth returns the number of callers currently waiting.
func (b *Bulkhead) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
