package gerbang

import (
	"math/rand"
	"sync/atomic"
)

// LoadShedderConfig holds load shedder configuration.
type LoadShedderConfig struct {
	// MaxConcurrent is the global in-flight count at which shedding begins.
	MaxConcurrent int

	// ShedProbability is the chance, per incoming request, of rejection
	// once MaxConcurrent is reached. Shedding probabilistically instead of
	// hard-cutting spreads rejection across the client population and
	// avoids synchronized retries amplifying the overload.
	ShedProbability float64
}

// LoadShedder is a global overload detector with probabilistic admission.
// Safe for concurrent use.
type LoadShedder struct {
	maxConcurrent int64
	probability   float64
	inflight      atomic.Int64

	// randFloat is swapped out in tests for deterministic draws.
	randFloat func() float64
}

// NewLoadShedder creates a load shedder, applying defaults for zero fields:
// shedding starts at 1024 in-flight requests with probability 0.5.
func NewLoadShedder(config LoadShedderConfig) *LoadShedder {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 1024
	}
	if config.ShedProbability == 0 {
		config.ShedProbability = 0.5
	}
	return &LoadShedder{
		maxConcurrent: int64(config.MaxConcurrent),
		probability:   config.ShedProbability,
		randFloat:     rand.Float64,
	}
}

// Enter increments the in-flight gauge and returns the new value, counting
// the entering request itself.
func (s *LoadShedder) Enter() int64 {
	return s.inflight.Add(1)
}

// Exit decrements the in-flight gauge.
func (s *LoadShedder) Exit() {
	s.inflight.Add(-1)
}

// InFlight returns the current number of in-flight requests.
func (s *LoadShedder) InFlight() int64 {
	return s.inflight.Load()
}

// ShouldShed reports whether an incoming request should be rejected given
// the current in-flight count. Below MaxConcurrent it never sheds; at or
// above, each request gets an independent random draw.
func (s *LoadShedder) ShouldShed() bool {
	return s.shedAt(s.inflight.Load() + 1)
}

// shedAt applies the shedding rule for a request that would bring the
// in-flight count to current.
func (s *LoadShedder) shedAt(current int64) bool {
	if current <= s.maxConcurrent {
		return false
	}
	return s.randFloat() < s.probability
}
