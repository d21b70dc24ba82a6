package gerbang

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPipelineErrorError(t *testing.T) {
	e := &PipelineError{
		Type:    ErrorTypeRateLimit,
		Message: "rate limit exceeded for 10.0.0.1",
	}

	want := "RateLimit: rate limit exceeded for 10.0.0.1"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPipelineErrorErrorWithCause(t *testing.T) {
	e := &PipelineError{
		Type:    ErrorTypeCircuitOpen,
		Message: "circuit breaker is open for GET:/upstream",
		Cause:   ErrCircuitOpen,
	}

	got := e.Error()
	if got != fmt.Sprintf("CircuitOpen: circuit breaker is open for GET:/upstream (%v)", ErrCircuitOpen) {
		t.Errorf("Unexpected Error() output: %q", got)
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	e := &PipelineError{
		Type:  ErrorTypeDuplicate,
		Cause: ErrDuplicateRequest,
	}

	if !errors.Is(e, ErrDuplicateRequest) {
		t.Error("Expected errors.Is to reach the sentinel through Unwrap")
	}
}

func TestPipelineErrorIs(t *testing.T) {
	a := &PipelineError{Type: ErrorTypeShed}
	b := &PipelineError{Type: ErrorTypeShed, Message: "different message"}
	c := &PipelineError{Type: ErrorTypeRateLimit}

	if !errors.Is(a, b) {
		t.Error("Expected errors with the same type to match")
	}
	if errors.Is(a, c) {
		t.Error("Expected errors with different types not to match")
	}
}

func TestIsRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicate sentinel", ErrDuplicateRequest, true},
		{"rate limit sentinel", ErrRateLimited, true},
		{"bulkhead full sentinel", ErrBulkheadFull, true},
		{"bulkhead timeout sentinel", ErrBulkheadTimeout, true},
		{"shed sentinel", ErrShed, true},
		{"circuit sentinel", ErrCircuitOpen, true},
		{"wrapped sentinel", fmt.Errorf("stage: %w", ErrRateLimited), true},
		{"pipeline rejection", &PipelineError{Type: ErrorTypeShed}, true},
		{"downstream failure", &PipelineError{Type: ErrorTypeDownstream}, false},
		{"cancellation", context.Canceled, false},
		{"arbitrary", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRejection(tt.err); got != tt.want {
				t.Errorf("IsRejection(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		errorType string
		want      string
	}{
		{ErrorTypeDuplicate, "duplicate_request"},
		{ErrorTypeRateLimit, "rate_limited"},
		{ErrorTypeBulkheadFull, "bulkhead_full"},
		{ErrorTypeBulkheadTimeout, "bulkhead_timeout"},
		{ErrorTypeShed, "overloaded"},
		{ErrorTypeCircuitOpen, "circuit_open"},
		{ErrorTypeDownstream, "internal"},
	}

	for _, tt := range tests {
		if got := errorKind(tt.errorType); got != tt.want {
			t.Errorf("errorKind(%s) = %s, want %s", tt.errorType, got, tt.want)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1100 * time.Millisecond, 2},
		{7 * time.Second, 7},
	}

	for _, tt := range tests {
		if got := retryAfterSeconds(tt.d); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
