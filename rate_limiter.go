package gerbang

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/ambiyansyah-risyal/gerbang/internal/slidingwindow"
)

// RateLimitConfig holds keyed rate limiter configuration.
type RateLimitConfig struct {
	// RequestsPerWindow is the steady-state quota per key per window.
	RequestsPerWindow int

	// Window is the sliding window length.
	Window time.Duration

	// BurstSize inflates the instantaneous capacity check, permitting short
	// bursts above the steady rate.
	BurstSize int

	// SubWindows is the number of sub-buckets the window is divided into.
	// Zero picks a granularity of roughly one second per sub-bucket.
	SubWindows int

	// KeyFunc partitions traffic into independent quotas. Defaults to the
	// client address.
	KeyFunc KeyFunc

	// ExcludePaths are never rate limited. Defaults to the health and
	// metrics endpoints.
	ExcludePaths []string
}

// RateLimitDecision is the outcome of a single Allow call.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// KeyedRateLimiter enforces a sliding-window quota per key. Distinct keys are
// fully independent; state is sharded so unrelated keys never contend on the
// same lock. Safe for concurrent use.
type KeyedRateLimiter struct {
	limit      int
	burst      int
	window     time.Duration
	subWindows int
	keyFunc    KeyFunc
	exclude    pathSet

	shards [shardCount]rateShard

	now func() time.Time
}

type rateShard struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
}

type rateBucket struct {
	mu  sync.Mutex
	win *slidingwindow.Counter
}

// NewKeyedRateLimiter creates a rate limiter, applying defaults for zero
// fields: 60 requests per 60s window, no burst, client-address keying.
func NewKeyedRateLimiter(config RateLimitConfig) *KeyedRateLimiter {
	if config.RequestsPerWindow == 0 {
		config.RequestsPerWindow = 60
	}
	if config.Window == 0 {
		config.Window = 60 * time.Second
	}
	if config.SubWindows == 0 {
		config.SubWindows = defaultSubWindows(config.Window)
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ClientAddrKeyFunc
	}
	exclude := config.ExcludePaths
	if exclude == nil {
		exclude = defaultExcludePaths
	}

	rl := &KeyedRateLimiter{
		limit:      config.RequestsPerWindow,
		burst:      config.BurstSize,
		window:     config.Window,
		subWindows: config.SubWindows,
		keyFunc:    config.KeyFunc,
		exclude:    newPathSet(exclude),
		now:        time.Now,
	}
	for i := range rl.shards {
		rl.shards[i].buckets = make(map[string]*rateBucket)
	}
	return rl
}

// defaultSubWindows picks a sub-bucket granularity of roughly one second,
// clamped so very short or very long windows stay tractable.
func defaultSubWindows(window time.Duration) int {
	n := int(window / time.Second)
	if n < 1 {
		n = 1
	}
	if n > 60 {
		n = 60
	}
	return n
}

// Allow consumes one slot from the key's quota if available. The decision
// carries the values surfaced as X-RateLimit-* headers.
func (rl *KeyedRateLimiter) Allow(key string) RateLimitDecision {
	now := rl.now()
	b := rl.bucket(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := rl.limit + rl.burst
	count := b.win.Count(now)
	reset := now.Add(rl.window)

	if count+1 > float64(capacity) {
		return RateLimitDecision{
			Allowed:    false,
			Limit:      rl.limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: b.win.NextRollover(now).Sub(now),
		}
	}

	b.win.Incr(now)
	// Round the weighted count up so the advertised remaining quota is never
	// more than the limiter would actually admit.
	remaining := capacity - int(math.Ceil(count)) - 1
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitDecision{
		Allowed:   true,
		Limit:     rl.limit,
		Remaining: remaining,
		Reset:     reset,
	}
}

// Eligible reports whether the request's path is subject to rate limiting.
func (rl *KeyedRateLimiter) Eligible(req *http.Request) bool {
	return !rl.exclude.contains(req.URL.Path)
}

// Key returns the quota key for req.
func (rl *KeyedRateLimiter) Key(req *http.Request) string {
	return rl.keyFunc(req)
}

// Window returns the configured window length.
func (rl *KeyedRateLimiter) Window() time.Duration {
	return rl.window
}

// bucket returns the per-key bucket, creating it on first observation of the
// key. The shard lock covers only the map access; counting happens under the
// bucket's own lock.
func (rl *KeyedRateLimiter) bucket(key string, now time.Time) *rateBucket {
	shard := &rl.shards[shardIndex(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	b, ok := shard.buckets[key]
	if !ok {
		b = &rateBucket{win: slidingwindow.New(rl.window, rl.subWindows, now)}
		shard.buckets[key] = b
	}
	return b
}
