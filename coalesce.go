package gerbang

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CoalesceConfig holds coalescer configuration.
type CoalesceConfig struct {
	// JoinWindow caps how long after a group opens that later arrivals may
	// still join it. Once the window elapses, or the leader's computation
	// finishes, the next request opens a fresh group. This bounds how stale
	// a shared result can be.
	JoinWindow time.Duration
}

// Coalescer merges concurrent identical in-flight requests into one
// computation. The first caller for a fingerprint becomes the leader and runs
// the computation exactly once; callers arriving while the group is open
// suspend and receive the leader's result verbatim. Safe for concurrent use.
type Coalescer struct {
	joinWindow time.Duration

	shards [shardCount]coalesceShard

	now func() time.Time
}

type coalesceShard struct {
	mu     sync.Mutex
	groups map[Fingerprint]*coalesceGroup
}

// coalesceGroup is one in-flight shared computation. The result slot is
// written exactly once, before done is closed; waiters read it only after
// observing the close.
type coalesceGroup struct {
	done    chan struct{}
	created time.Time
	resp    *CapturedResponse
	err     error
	waiters atomic.Int64
}

func (g *coalesceGroup) isDone() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// NewCoalescer creates a coalescer. A zero JoinWindow defaults to 100ms.
func NewCoalescer(config CoalesceConfig) *Coalescer {
	if config.JoinWindow == 0 {
		config.JoinWindow = 100 * time.Millisecond
	}
	c := &Coalescer{
		joinWindow: config.JoinWindow,
		now:        time.Now,
	}
	for i := range c.shards {
		c.shards[i].groups = make(map[Fingerprint]*coalesceGroup)
	}
	return c
}

// Join runs compute through the group for fp. The boolean reports whether the
// caller was served a shared result (true) or led the computation itself
// (false).
//
// A waiter whose ctx is cancelled detaches with ctx.Err() without disturbing
// the group; the leader's computation continues for the remaining waiters.
// Callers who need the computation itself to survive the leader's own
// cancellation should detach the context they compute under (the pipeline
// uses context.WithoutCancel for this).
func (c *Coalescer) Join(ctx context.Context, fp Fingerprint, compute func() (*CapturedResponse, error)) (*CapturedResponse, bool, error) {
	shard := &c.shards[shardIndex(string(fp))]

	shard.mu.Lock()
	if g, ok := shard.groups[fp]; ok && !g.isDone() && c.now().Sub(g.created) <= c.joinWindow {
		g.waiters.Add(1)
		shard.mu.Unlock()

		select {
		case <-g.done:
			return g.resp, true, g.err
		case <-ctx.Done():
			g.waiters.Add(-1)
			return nil, false, ctx.Err()
		}
	}

	// Either no group exists, the previous group already published its
	// result, or its join window lapsed. This caller leads a new group;
	// replacing the map entry is safe because stale leaders delete only
	// their own group.
	g := &coalesceGroup{
		done:    make(chan struct{}),
		created: c.now(),
	}
	shard.groups[fp] = g
	shard.mu.Unlock()

	g.resp, g.err = compute()
	close(g.done)

	shard.mu.Lock()
	if shard.groups[fp] == g {
		delete(shard.groups, fp)
	}
	shard.mu.Unlock()

	return g.resp, false, g.err
}

// JoinWindow returns the configured join window.
func (c *Coalescer) JoinWindow() time.Duration {
	return c.joinWindow
}
