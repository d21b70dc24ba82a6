package gerbang

import (
	"net/http"
	"sync"
	"time"
)

// CircuitState represents the state of one circuit.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures in CLOSED state that opens
	// the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects before admitting
	// recovery probes.
	RecoveryTimeout time.Duration

	// HalfOpenRequests is the number of probe calls admitted while
	// half-open; that many consecutive successes close the circuit again.
	HalfOpenRequests int

	// FailureStatuses are response codes counted as failures. Defaults to
	// 500, 502, 503 and 504.
	FailureStatuses []int

	// ExcludedStatuses are never counted as failures, taking precedence
	// over FailureStatuses. Defaults to 400, 401, 403, 404 and 422.
	ExcludedStatuses []int

	// FailurePredicate, when set, replaces the status-based classification
	// entirely. status is zero when the call produced no response.
	FailurePredicate FailurePredicate

	// KeyFunc selects the protected target for a request. Defaults to
	// method + normalized path, one circuit per endpoint.
	KeyFunc KeyFunc
}

// CircuitBreaker isolates failing downstream targets with a per-key
// three-state machine. Each circuit carries its own lock; the key-to-circuit
// map is sharded so unrelated targets never serialize. Safe for concurrent
// use.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenRequests int
	failureStatuses  map[int]struct{}
	excludedStatuses map[int]struct{}
	failurePredicate FailurePredicate
	keyFunc          KeyFunc

	shards [shardCount]circuitShard

	now func() time.Time
}

type circuitShard struct {
	mu       sync.Mutex
	circuits map[string]*circuit
}

type circuit struct {
	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	// probes counts admissions into the current half-open episode, capping
	// how many concurrent recovery calls reach the target.
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker creates a circuit breaker, applying defaults for zero
// fields: 5 failures to open, 60s recovery, 2 half-open probes.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 2
	}
	if config.FailureStatuses == nil {
		config.FailureStatuses = []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	if config.ExcludedStatuses == nil {
		config.ExcludedStatuses = []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		}
	}
	if config.KeyFunc == nil {
		config.KeyFunc = TargetKeyFunc
	}

	cb := &CircuitBreaker{
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		halfOpenRequests: config.HalfOpenRequests,
		failureStatuses:  newStatusSet(config.FailureStatuses),
		excludedStatuses: newStatusSet(config.ExcludedStatuses),
		failurePredicate: config.FailurePredicate,
		keyFunc:          config.KeyFunc,
		now:              time.Now,
	}
	for i := range cb.shards {
		cb.shards[i].circuits = make(map[string]*circuit)
	}
	return cb
}

// Guard wraps a single downstream invocation for the request's target: it
// rejects immediately while the circuit is open, otherwise runs call and
// records the outcome before returning it.
func (cb *CircuitBreaker) Guard(req *http.Request, call func() (*CapturedResponse, error)) (*CapturedResponse, error) {
	key := cb.keyFunc(req)

	admit, retryAfter := cb.allow(key)
	if !admit {
		return nil, &PipelineError{
			Type:       ErrorTypeCircuitOpen,
			Message:    "circuit breaker is open for " + key,
			Stage:      StageBreaker,
			StatusCode: http.StatusServiceUnavailable,
			RetryAfter: retryAfter,
			Cause:      ErrCircuitOpen,
		}
	}

	resp, err := call()

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if cb.isFailure(status, err) {
		cb.recordFailure(key)
	} else {
		cb.recordSuccess(key)
	}
	return resp, err
}

// State returns the current state of the circuit for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	c := cb.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset forces the circuit for key back to closed with cleared counters.
func (cb *CircuitBreaker) Reset(key string) {
	c := cb.circuit(key)
	c.mu.Lock()
	c.state = StateClosed
	c.failures = 0
	c.successes = 0
	c.probes = 0
	c.mu.Unlock()
}

// Key returns the target key the breaker uses for req.
func (cb *CircuitBreaker) Key(req *http.Request) string {
	return cb.keyFunc(req)
}

// allow decides admission for one call on key's circuit. The returned
// duration is the remaining recovery time when the circuit is open.
func (cb *CircuitBreaker) allow(key string) (bool, time.Duration) {
	c := cb.circuit(key)
	now := cb.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true, 0
	case StateOpen:
		if now.Sub(c.openedAt) >= cb.recoveryTimeout {
			c.state = StateHalfOpen
			c.failures = 0
			c.successes = 0
			c.probes = 1
			return true, 0
		}
		return false, c.openedAt.Add(cb.recoveryTimeout).Sub(now)
	case StateHalfOpen:
		if c.probes < cb.halfOpenRequests {
			c.probes++
			return true, 0
		}
		// Probe quota consumed; reject until the outstanding probes
		// decide the circuit's fate.
		return false, 0
	default:
		return false, 0
	}
}

func (cb *CircuitBreaker) recordSuccess(key string) {
	c := cb.circuit(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		// A success ends the current failure run, approximating a rolling
		// observation window.
		c.failures = 0
	case StateHalfOpen:
		c.successes++
		if c.successes >= cb.halfOpenRequests {
			c.state = StateClosed
			c.failures = 0
			c.successes = 0
			c.probes = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure(key string) {
	c := cb.circuit(key)
	now := cb.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		c.failures++
		if c.failures >= cb.failureThreshold {
			c.open(now)
		}
	case StateHalfOpen:
		// One probe failure reopens immediately, discarding partial
		// probe progress.
		c.open(now)
	}
}

func (c *circuit) open(now time.Time) {
	c.state = StateOpen
	c.openedAt = now
	c.failures = 0
	c.successes = 0
	c.probes = 0
}

// isFailure classifies a downstream outcome.
func (cb *CircuitBreaker) isFailure(status int, err error) bool {
	if cb.failurePredicate != nil {
		return cb.failurePredicate(status, err)
	}
	if err != nil {
		return true
	}
	if _, excluded := cb.excludedStatuses[status]; excluded {
		return false
	}
	_, failing := cb.failureStatuses[status]
	return failing
}

// circuit returns the state machine for key, creating it closed on first
// observation.
func (cb *CircuitBreaker) circuit(key string) *circuit {
	shard := &cb.shards[shardIndex(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	c, ok := shard.circuits[key]
	if !ok {
		c = &circuit{state: StateClosed}
		shard.circuits[key] = c
	}
	return c
}
