package slidingwindow

import (
	"testing"
	"time"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewClampsBuckets(t *testing.T) {
	c := New(10*time.Second, 0, base)

	if c.BucketLen() != 10*time.Second {
		t.Errorf("Expected bucketLen=10s for zero buckets, got %v", c.BucketLen())
	}

	c = New(10*time.Second, 10, base)
	if c.BucketLen() != time.Second {
		t.Errorf("Expected bucketLen=1s, got %v", c.BucketLen())
	}
}

func TestCountWithinWindow(t *testing.T) {
	c := New(10*time.Second, 10, base)

	for i := 0; i < 5; i++ {
		c.Incr(base)
	}

	if got := c.Count(base); got != 5 {
		t.Errorf("Expected count=5 at t0, got %v", got)
	}

	if got := c.Count(base.Add(5 * time.Second)); got != 5 {
		t.Errorf("Expected count=5 at t0+5s, got %v", got)
	}
}

func TestCountDecaysLinearly(t *testing.T) {
	c := New(10*time.Second, 10, base)

	for i := 0; i < 4; i++ {
		c.Incr(base)
	}

	// The t0 bucket starts blending out once it becomes the oldest slot.
	if got := c.Count(base.Add(10*time.Second + 500*time.Millisecond)); got != 2 {
		t.Errorf("Expected count=2 halfway through expiry, got %v", got)
	}

	if got := c.Count(base.Add(11 * time.Second)); got != 0 {
		t.Errorf("Expected count=0 after full expiry, got %v", got)
	}
}

func TestCountAcrossBuckets(t *testing.T) {
	c := New(3*time.Second, 3, base)

	c.Incr(base)
	c.Incr(base.Add(time.Second))
	c.Incr(base.Add(2 * time.Second))

	if got := c.Count(base.Add(2 * time.Second)); got != 3 {
		t.Errorf("Expected count=3, got %v", got)
	}
}

func TestAdvanceExpiresFarFuture(t *testing.T) {
	c := New(10*time.Second, 10, base)

	c.Incr(base)
	c.Incr(base)

	if got := c.Count(base.Add(time.Hour)); got != 0 {
		t.Errorf("Expected count=0 after a long gap, got %v", got)
	}
}

func TestClockBackwardsHoldsPosition(t *testing.T) {
	c := New(10*time.Second, 10, base)

	c.Incr(base.Add(5 * time.Second))

	if got := c.Count(base); got != 1 {
		t.Errorf("Expected count=1 when clock goes backwards, got %v", got)
	}
}

func TestNextRollover(t *testing.T) {
	c := New(10*time.Second, 10, base)

	at := base.Add(300 * time.Millisecond)
	want := base.Add(time.Second)
	if got := c.NextRollover(at); !got.Equal(want) {
		t.Errorf("Expected rollover at %v, got %v", want, got)
	}
}

func TestReset(t *testing.T) {
	c := New(10*time.Second, 10, base)

	c.Incr(base)
	c.Incr(base)
	c.Reset(base)

	if got := c.Count(base); got != 0 {
		t.Errorf("Expected count=0 after reset, got %v", got)
	}
}
