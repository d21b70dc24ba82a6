package gerbang

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewBulkheadDefaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})

	if b.maxConcurrent != 64 {
		t.Errorf("Expected default MaxConcurrent=64, got %d", b.maxConcurrent)
	}
	if b.maxWaiting != 128 {
		t.Errorf("Expected default MaxWaiting=128, got %d", b.maxWaiting)
	}
	if b.timeout != 5*time.Second {
		t.Errorf("Expected default Timeout=5s, got %v", b.timeout)
	}
}

func TestBulkheadAcquireUpToCapacity(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2, MaxWaiting: -1})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if b.Active() != 2 {
		t.Errorf("Expected Active=2, got %d", b.Active())
	}

	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Expected ErrBulkheadFull with queueing disabled, got %v", err)
	}

	b.Release()
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Expected Acquire to succeed after Release, got %v", err)
	}
}

func TestBulkheadQueueFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 1, Timeout: time.Second})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	queued := make(chan error, 1)
	go func() {
		queued <- b.Acquire(context.Background())
	}()
	waitForQueueDepth(t, b, 1)

	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Expected ErrBulkheadFull when queue is full, got %v", err)
	}

	b.Release()
	if err := <-queued; err != nil {
		t.Errorf("Expected queued caller to obtain the released permit, got %v", err)
	}
}

func TestBulkheadTimeout(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 1, Timeout: 20 * time.Millisecond})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("Expected ErrBulkheadTimeout, got %v", err)
	}

	if b.QueueDepth() != 0 {
		t.Errorf("Expected timed-out waiter removed from queue, got depth %d", b.QueueDepth())
	}
}

func TestBulkheadCancellation(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 1, Timeout: time.Minute})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(ctx)
	}()
	waitForQueueDepth(t, b, 1)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancelled waiter did not return")
	}

	if b.QueueDepth() != 0 {
		t.Errorf("Expected cancelled waiter removed from queue, got depth %d", b.QueueDepth())
	}
}

func TestBulkheadFIFOOrder(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 2, Timeout: time.Minute})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	order := make(chan int, 2)
	first := make(chan error, 1)
	go func() {
		err := b.Acquire(context.Background())
		order <- 1
		first <- err
	}()
	waitForQueueDepth(t, b, 1)

	second := make(chan error, 1)
	go func() {
		err := b.Acquire(context.Background())
		order <- 2
		second <- err
	}()
	waitForQueueDepth(t, b, 2)

	b.Release()
	if got := <-order; got != 1 {
		t.Errorf("Expected waiter 1 granted first, got waiter %d", got)
	}
	if err := <-first; err != nil {
		t.Errorf("waiter 1 error: %v", err)
	}

	b.Release()
	if got := <-order; got != 2 {
		t.Errorf("Expected waiter 2 granted second, got waiter %d", got)
	}
	if err := <-second; err != nil {
		t.Errorf("waiter 2 error: %v", err)
	}
}

func TestBulkheadGrantAtDeadlineLosesTie(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 1, Timeout: time.Minute})

	// First call to now computes the waiter's deadline; every later call
	// reports a time well past it, so the grant arrives expired.
	start := time.Now()
	calls := 0
	b.now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(2 * time.Minute)
	}

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(context.Background())
	}()
	waitForQueueDepth(t, b, 1)

	b.Release()
	select {
	case err := <-done:
		if !errors.Is(err, ErrBulkheadTimeout) {
			t.Errorf("Expected expired waiter to time out despite the grant, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expired waiter did not return")
	}

	// The declined permit passed along and, with no one else queued, was
	// released.
	if b.Active() != 0 {
		t.Errorf("Expected Active=0 after the declined grant, got %d", b.Active())
	}
	if b.QueueDepth() != 0 {
		t.Errorf("Expected empty queue, got depth %d", b.QueueDepth())
	}
}

func TestBulkheadPermitTransfer(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWaiting: 1, Timeout: time.Minute})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(context.Background())
	}()
	waitForQueueDepth(t, b, 1)

	// Release hands the permit to the waiter directly; active stays at 1.
	b.Release()
	if err := <-done; err != nil {
		t.Fatalf("Expected permit transfer, got %v", err)
	}
	if b.Active() != 1 {
		t.Errorf("Expected Active=1 after transfer, got %d", b.Active())
	}

	b.Release()
	if b.Active() != 0 {
		t.Errorf("Expected Active=0 after final release, got %d", b.Active())
	}
}

func waitForQueueDepth(t *testing.T, b *Bulkhead, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.QueueDepth() >= depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for queue depth %d, have %d", depth, b.QueueDepth())
}
