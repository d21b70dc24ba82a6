package gerbang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Option configures a Pipeline.
type Option func(p *Pipeline)

// Pipeline composes the admission stages around an http.Handler. Stages run
// in a fixed order: deduplication, coalescing, rate limiting, bulkhead, load
// shedding, circuit breaker, then the downstream handler. Every stage is
// optional; a stage that is not configured is skipped. Safe for concurrent
// use.
type Pipeline struct {
	fingerprinter *Fingerprinter
	deduplicator  *Deduplicator
	coalescer     *Coalescer
	rateLimiter   *KeyedRateLimiter
	bulkhead      *Bulkhead
	shedder       *LoadShedder
	breaker       *CircuitBreaker

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	now func() time.Time
}

// New creates a pipeline with the given options and validates the resulting
// configuration.
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		fingerprinter: NewFingerprinter(FingerprintConfig{}),
		now:           time.Now,
	}

	for _, opt := range options {
		opt(p)
	}

	if p.debug != nil && p.debug.Enabled && p.logger == nil {
		p.logger = NewSimpleLogger()
	}

	if err := p.ValidateConfiguration(); err != nil {
		return nil, err
	}

	return p, nil
}

// Middleware wraps next with the full admission pipeline.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := p.now()
		method := req.Method
		endpoint := normalizePath(req.URL.Path)
		requestID := p.requestID()

		p.metrics.RecordRequestStart(method, endpoint)
		defer p.metrics.RecordRequestEnd(method, endpoint)

		fp, haveFP := p.fingerprint(req, requestID)

		recorded := false
		if p.deduplicator != nil && haveFP && p.deduplicator.Eligible(req) {
			decision := p.deduplicator.Admit(fp)
			if decision.Allowed {
				recorded = true
			} else {
				p.metrics.RecordDeduplicationHit(method, endpoint)
				p.fail(w, req, &PipelineError{
					Type:       ErrorTypeDuplicate,
					Message:    fmt.Sprintf("duplicate request, identical request seen within the last %s", p.deduplicator.Window()),
					Stage:      StageDedup,
					StatusCode: http.StatusTooManyRequests,
					RetryAfter: decision.RetryAfter,
					Cause:      ErrDuplicateRequest,
				}, requestID)
				return
			}
		}

		var resp *CapturedResponse
		var shared bool
		var err error

		if p.coalescer != nil && haveFP {
			// The leader computes on a detached context so its own
			// cancellation cannot poison the result shared with waiters.
			detached := req.WithContext(context.WithoutCancel(req.Context()))
			resp, shared, err = p.coalescer.Join(req.Context(), fp, func() (*CapturedResponse, error) {
				return p.execute(next, detached, requestID)
			})
		} else {
			resp, err = p.execute(next, req, requestID)
		}

		if err != nil {
			// The request never executed; free its fingerprint so the
			// client can retry without waiting out the dedup window.
			if recorded {
				p.deduplicator.Forget(fp)
			}
			p.fail(w, req, err, requestID)
			return
		}

		if shared {
			p.metrics.RecordCoalesced(method, endpoint)
			if p.debugEnabled() && p.debug.LogCoalescing {
				p.logger.Debug("served shared coalesced result",
					"requestID", requestID, "method", method, "endpoint", endpoint)
			}
		}

		resp.WriteTo(w)
		p.metrics.RecordRequest(method, endpoint, resp.StatusCode, p.now().Sub(start))
	})
}

// execute runs the admission stages downstream of coalescing and captures the
// handler's response.
func (p *Pipeline) execute(next http.Handler, req *http.Request, requestID string) (*CapturedResponse, error) {
	var rateHeader http.Header
	if p.rateLimiter != nil && p.rateLimiter.Eligible(req) {
		key := p.rateLimiter.Key(req)
		decision := p.rateLimiter.Allow(key)
		rateHeader = rateLimitHeaders(decision)
		if !decision.Allowed {
			if p.debugEnabled() && p.debug.LogRateLimit {
				p.logger.Debug("rate limit exceeded",
					"requestID", requestID, "key", key, "retryAfter", decision.RetryAfter)
			}
			return nil, &PipelineError{
				Type:       ErrorTypeRateLimit,
				Message:    fmt.Sprintf("rate limit exceeded for %s", key),
				Stage:      StageRateLimit,
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: decision.RetryAfter,
				Header:     rateHeader,
				Cause:      ErrRateLimited,
			}
		}
	}

	if p.bulkhead != nil {
		if err := p.bulkhead.Acquire(req.Context()); err != nil {
			if p.debugEnabled() && p.debug.LogBulkhead {
				p.logger.Debug("bulkhead rejected request",
					"requestID", requestID, "error", err,
					"active", p.bulkhead.Active(), "queued", p.bulkhead.QueueDepth())
			}
			return nil, attachRateHeaders(p.bulkheadError(err), rateHeader)
		}
		defer func() {
			p.bulkhead.Release()
			p.metrics.RecordBulkhead("default", p.bulkhead.Active(), p.bulkhead.QueueDepth())
		}()
		p.metrics.RecordBulkhead("default", p.bulkhead.Active(), p.bulkhead.QueueDepth())
	}

	if p.shedder != nil {
		if p.shedder.ShouldShed() {
			return nil, &PipelineError{
				Type:       ErrorTypeShed,
				Message:    fmt.Sprintf("service overloaded, %d requests in flight", p.shedder.InFlight()),
				Stage:      StageShed,
				StatusCode: http.StatusTooManyRequests,
				Header:     rateHeader,
				Cause:      ErrShed,
			}
		}
		p.shedder.Enter()
		defer p.shedder.Exit()
	}

	call := func() (*CapturedResponse, error) {
		rec := newResponseRecorder()
		next.ServeHTTP(rec, req)
		return rec.captured(), nil
	}

	var resp *CapturedResponse
	var err error
	if p.breaker != nil {
		key := p.breaker.Key(req)
		resp, err = p.breaker.Guard(req, call)

		state := p.breaker.State(key)
		p.metrics.RecordCircuitBreakerState(key, state)
		if err != nil {
			if p.debugEnabled() && p.debug.LogCircuit {
				p.logger.Debug("circuit breaker rejected request",
					"requestID", requestID, "target", key, "state", state.String())
			}
			return nil, attachRateHeaders(err, rateHeader)
		}
		resp.Header.Set("X-Circuit-State", state.String())
	} else {
		resp, err = call()
		if err != nil {
			return nil, err
		}
	}

	for name, values := range rateHeader {
		resp.Header[name] = values
	}
	return resp, nil
}

// fail writes the terminal outcome for a request that did not reach a
// downstream response.
func (p *Pipeline) fail(w http.ResponseWriter, req *http.Request, err error, requestID string) {
	method := req.Method
	endpoint := normalizePath(req.URL.Path)

	var pe *PipelineError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		p.metrics.RecordRejection(pe.Stage, method, endpoint)
		if p.debugEnabled() && p.debug.LogRejections {
			p.logger.Debug("request rejected",
				"requestID", requestID, "stage", pe.Stage,
				"status", pe.StatusCode, "reason", pe.Message)
		}
		writeRejection(w, pe)
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client went away while queued or waiting on a coalesced result;
		// there is no one left to answer.
		return
	}

	p.metrics.RecordError(ErrorTypeDownstream, method, endpoint)
	if p.debugEnabled() {
		p.logger.Error("pipeline failure", "requestID", requestID, "error", err)
	}
	writeRejection(w, &PipelineError{
		Type:       ErrorTypeDownstream,
		Message:    "internal error",
		StatusCode: http.StatusInternalServerError,
	})
}

// bulkheadError wraps a bulkhead admission failure. Context errors pass
// through untouched so cancellation is distinguishable from rejection.
func (p *Pipeline) bulkheadError(err error) error {
	switch {
	case errors.Is(err, ErrBulkheadFull):
		return &PipelineError{
			Type:       ErrorTypeBulkheadFull,
			Message:    "concurrency limit reached and wait queue is full",
			Stage:      StageBulkhead,
			StatusCode: http.StatusTooManyRequests,
			Cause:      ErrBulkheadFull,
		}
	case errors.Is(err, ErrBulkheadTimeout):
		return &PipelineError{
			Type:       ErrorTypeBulkheadTimeout,
			Message:    fmt.Sprintf("timed out after %s waiting for capacity", p.bulkhead.timeout),
			Stage:      StageBulkhead,
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: p.bulkhead.timeout,
			Cause:      ErrBulkheadTimeout,
		}
	default:
		return err
	}
}

// fingerprint computes the request fingerprint when a stage needs it. Failures
// to read the body fail open: the request proceeds without deduplication or
// coalescing rather than being rejected on a transport hiccup.
func (p *Pipeline) fingerprint(req *http.Request, requestID string) (Fingerprint, bool) {
	needed := p.coalescer != nil ||
		(p.deduplicator != nil && p.deduplicator.Eligible(req))
	if !needed {
		return "", false
	}

	fp, err := p.fingerprinter.Compute(req)
	if err != nil {
		if p.debugEnabled() {
			p.logger.Warn("fingerprint computation failed, skipping dedup and coalescing",
				"requestID", requestID, "error", err)
		}
		return "", false
	}
	return fp, true
}

func (p *Pipeline) debugEnabled() bool {
	return p.debug != nil && p.debug.Enabled && p.logger != nil
}

func (p *Pipeline) requestID() string {
	if p.debug != nil && p.debug.Enabled && p.debug.RequestIDGen != nil {
		return p.debug.RequestIDGen()
	}
	return ""
}

// rejectionBody is the JSON shape written for every rejection.
type rejectionBody struct {
	Error      string `json:"error"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

// writeRejection renders a PipelineError as an HTTP response, merging any
// stage bookkeeping headers and the Retry-After hint.
func writeRejection(w http.ResponseWriter, pe *PipelineError) {
	for name, values := range pe.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if pe.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(pe.RetryAfter)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(pe.StatusCode)
	_ = json.NewEncoder(w).Encode(rejectionBody{
		Error:      errorKind(pe.Type),
		Detail:     pe.Message,
		StatusCode: pe.StatusCode,
	})
}

// retryAfterSeconds rounds a retry hint up to whole seconds with a floor of
// one, since Retry-After cannot express sub-second waits.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// attachRateHeaders merges the rate limit bookkeeping headers into a
// rejection from a stage downstream of the rate limiter, so a request whose
// quota was already consumed still reports it regardless of where it was
// turned away.
func attachRateHeaders(err error, h http.Header) error {
	if len(h) == 0 {
		return err
	}
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return err
	}
	if pe.Header == nil {
		pe.Header = make(http.Header)
	}
	for name, values := range h {
		pe.Header[name] = values
	}
	return err
}

// rateLimitHeaders renders a rate limit decision as the conventional
// X-RateLimit-* headers.
func rateLimitHeaders(d RateLimitDecision) http.Header {
	h := make(http.Header)
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	return h
}
