// Package slidingwindow approximates "events in the trailing window" with a
// ring of fixed sub-bucket counters, giving O(1) space and time per key
// instead of an unbounded timestamp history.
package slidingwindow

import "time"

// Counter tracks event counts across a ring of sub-buckets covering the
// window. The effective count blends the oldest bucket in linearly by its
// remaining overlap with the trailing window, so the estimate slides smoothly
// between bucket boundaries.
//
// Counter is not safe for concurrent use; callers hold their own per-key lock.
type Counter struct {
	bucketLen time.Duration
	// counts holds buckets+1 slots: the current bucket plus the `buckets`
	// most recent, so the partially-expired bucket is still available for
	// weighting.
	counts    []int64
	head      int
	headStart time.Time
	sum       int64
}

// New creates a counter for a window divided into the given number of
// sub-buckets. The effective window is buckets*(window/buckets), which equals
// window whenever window divides evenly.
func New(window time.Duration, buckets int, now time.Time) *Counter {
	if buckets < 1 {
		buckets = 1
	}
	bucketLen := window / time.Duration(buckets)
	if bucketLen <= 0 {
		bucketLen = window
		buckets = 1
	}
	return &Counter{
		bucketLen: bucketLen,
		counts:    make([]int64, buckets+1),
		headStart: now.Truncate(bucketLen),
	}
}

// Incr records one event at the given time.
func (c *Counter) Incr(now time.Time) {
	c.advance(now)
	c.counts[c.head]++
	c.sum++
}

// Count returns the estimated number of events in the trailing window ending
// at now.
func (c *Counter) Count(now time.Time) float64 {
	c.advance(now)
	oldest := c.counts[(c.head+1)%len(c.counts)]
	frac := float64(now.Sub(c.headStart)) / float64(c.bucketLen)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return float64(c.sum) - float64(oldest)*frac
}

// NextRollover returns when the current sub-bucket ends, which is the
// earliest moment the estimate can drop.
func (c *Counter) NextRollover(now time.Time) time.Time {
	c.advance(now)
	return c.headStart.Add(c.bucketLen)
}

// Reset discards all recorded events.
func (c *Counter) Reset(now time.Time) {
	for i := range c.counts {
		c.counts[i] = 0
	}
	c.sum = 0
	c.head = 0
	c.headStart = now.Truncate(c.bucketLen)
}

// BucketLen returns the sub-bucket granularity.
func (c *Counter) BucketLen() time.Duration {
	return c.bucketLen
}

// advance rotates the ring forward to the bucket containing now, expiring
// counts that fell out of scope.
func (c *Counter) advance(now time.Time) {
	if now.Before(c.headStart) {
		// Clock went backwards; hold position rather than resurrect
		// expired counts.
		return
	}
	steps := int(now.Sub(c.headStart) / c.bucketLen)
	if steps == 0 {
		return
	}
	if steps >= len(c.counts) {
		c.Reset(now)
		return
	}
	for i := 0; i < steps; i++ {
		c.head = (c.head + 1) % len(c.counts)
		c.sum -= c.counts[c.head]
		c.counts[c.head] = 0
	}
	c.headStart = c.headStart.Add(time.Duration(steps) * c.bucketLen)
}
