package gerbang

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DedupConfig holds deduplicator configuration.
type DedupConfig struct {
	// Window is how long an admitted fingerprint blocks repeats.
	Window time.Duration

	// Methods lists the HTTP methods subject to deduplication. Defaults to
	// the state-changing methods.
	Methods []string

	// ExcludePaths are never deduplicated. Defaults to the health and
	// metrics endpoints.
	ExcludePaths []string

	// MaxEntries bounds the number of live fingerprints held in memory;
	// when exceeded the least recently seen entries are evicted early.
	MaxEntries int
}

// DedupDecision is the outcome of a single Admit call.
type DedupDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Deduplicator rejects repeat submissions of the same fingerprint within a
// window. Expiry is checked lazily at lookup time, so an entry is never
// reported live past its expiry regardless of eviction timing. Safe for
// concurrent use.
type Deduplicator struct {
	window  time.Duration
	methods methodSet
	exclude pathSet

	shards [shardCount]*dedupShard

	now func() time.Time
}

// dedupShard pairs a bounded LRU of fingerprint expiries with the lock that
// makes check-and-set atomic.
type dedupShard struct {
	mu      sync.Mutex
	entries *simplelru.LRU[Fingerprint, time.Time]
}

// NewDeduplicator creates a deduplicator, applying defaults for zero fields:
// a 10s window, state-changing methods, 65536 tracked fingerprints.
func NewDeduplicator(config DedupConfig) *Deduplicator {
	if config.Window == 0 {
		config.Window = 10 * time.Second
	}
	if config.Methods == nil {
		config.Methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}
	exclude := config.ExcludePaths
	if exclude == nil {
		exclude = defaultExcludePaths
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 65536
	}
	perShard := config.MaxEntries / shardCount
	if perShard < 1 {
		perShard = 1
	}

	d := &Deduplicator{
		window:  config.Window,
		methods: newMethodSet(config.Methods),
		exclude: newPathSet(exclude),
		now:     time.Now,
	}
	for i := range d.shards {
		entries, _ := simplelru.NewLRU[Fingerprint, time.Time](perShard, nil)
		d.shards[i] = &dedupShard{entries: entries}
	}
	return d
}

// Eligible reports whether the request's method and path fall under
// deduplication at all.
func (d *Deduplicator) Eligible(req *http.Request) bool {
	return d.methods.contains(req.Method) && !d.exclude.contains(req.URL.Path)
}

// Admit records the fingerprint if it has not been seen within the window.
// A live hit is rejected with retry_after = expiry - now; an expired entry is
// treated as absent and replaced.
func (d *Deduplicator) Admit(fp Fingerprint) DedupDecision {
	now := d.now()
	shard := d.shards[shardIndex(string(fp))]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if expiry, ok := shard.entries.Get(fp); ok {
		if now.Before(expiry) {
			return DedupDecision{
				Allowed:    false,
				RetryAfter: expiry.Sub(now),
			}
		}
		shard.entries.Remove(fp)
	}

	shard.entries.Add(fp, now.Add(d.window))
	return DedupDecision{Allowed: true}
}

// Forget drops a fingerprint before its expiry. Useful when the downstream
// handler failed and the client should be free to retry immediately.
func (d *Deduplicator) Forget(fp Fingerprint) {
	shard := d.shards[shardIndex(string(fp))]
	shard.mu.Lock()
	shard.entries.Remove(fp)
	shard.mu.Unlock()
}

// Window returns the configured deduplication window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// Len returns the number of tracked fingerprints, including entries that
// expired but have not yet been looked up.
func (d *Deduplicator) Len() int {
	total := 0
	for _, shard := range d.shards {
		shard.mu.Lock()
		total += shard.entries.Len()
		shard.mu.Unlock()
	}
	return total
}
