package gerbang

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common rejection scenarios
var (
	// ErrDuplicateRequest is returned when a fingerprint was already admitted
	// within the deduplication window
	ErrDuplicateRequest = errors.New("gerbang: duplicate request")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("gerbang: rate limited")

	// ErrBulkheadFull is returned when both the bulkhead and its wait queue
	// are at capacity
	ErrBulkheadFull = errors.New("gerbang: bulkhead queue full")

	// ErrBulkheadTimeout is returned when a queued caller's deadline passes
	// before a permit is granted
	ErrBulkheadTimeout = errors.New("gerbang: bulkhead wait timed out")

	// ErrShed is returned when the load shedder rejects a request under
	// global overload
	ErrShed = errors.New("gerbang: request shed")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("gerbang: circuit open")
)

// Error type identifiers carried on PipelineError.Type.
const (
	ErrorTypeDuplicate       = "Duplicate"
	ErrorTypeRateLimit       = "RateLimit"
	ErrorTypeBulkheadFull    = "BulkheadFull"
	ErrorTypeBulkheadTimeout = "BulkheadTimeout"
	ErrorTypeShed            = "Shed"
	ErrorTypeCircuitOpen     = "CircuitOpen"
	ErrorTypeDownstream      = "Downstream"
	ErrorTypeValidation      = "Validation"
)

// Stage names used in errors, logs and metrics labels.
const (
	StageDedup     = "dedup"
	StageCoalesce  = "coalesce"
	StageRateLimit = "ratelimit"
	StageBulkhead  = "bulkhead"
	StageShed      = "shed"
	StageBreaker   = "breaker"
)

// PipelineError represents a structured rejection or failure produced by a
// pipeline stage.
type PipelineError struct {
	Type       string
	Message    string
	Stage      string
	StatusCode int
	RetryAfter time.Duration
	// Header carries stage-specific bookkeeping headers (rate limit
	// counters) that the rejection writer merges into the response.
	Header http.Header
	Cause  error
}

// Error implements error interface.
func (e *PipelineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *PipelineError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*PipelineError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsRejection reports whether err is an admission rejection (dedup hit, rate
// limit, bulkhead, shed, open circuit) as opposed to a downstream failure or
// cancellation. Rejections are terminal for the request and never retried by
// the pipeline.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrBulkheadFull) || errors.Is(err, ErrBulkheadTimeout) ||
		errors.Is(err, ErrShed) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		switch pipeErr.Type {
		case ErrorTypeDuplicate, ErrorTypeRateLimit, ErrorTypeBulkheadFull,
			ErrorTypeBulkheadTimeout, ErrorTypeShed, ErrorTypeCircuitOpen:
			return true
		}
	}
	return false
}

// errorKind maps an error type to the machine-readable kind used in the
// rejection body.
func errorKind(errorType string) string {
	switch errorType {
	case ErrorTypeDuplicate:
		return "duplicate_request"
	case ErrorTypeRateLimit:
		return "rate_limited"
	case ErrorTypeBulkheadFull:
		return "bulkhead_full"
	case ErrorTypeBulkheadTimeout:
		return "bulkhead_timeout"
	case ErrorTypeShed:
		return "overloaded"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	default:
		return "internal"
	}
}
