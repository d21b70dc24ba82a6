// Package gerbang provides an admission control and resilience pipeline for
// HTTP services, composed of independent stages wrapped around a downstream
// handler:
//
//   - Request deduplication (rejects repeat submissions within a window)
//   - Request coalescing (merges concurrent identical requests into one computation)
//   - Keyed sliding-window rate limiting with burst allowance
//   - Bulkhead (bounded concurrency with a FIFO wait queue)
//   - Probabilistic load shedding under global overload
//   - Circuit breaker per protected target (closed / open / half-open states)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Per-key state under fine-grained locks, never one global critical section
//   - Safe concurrent use of a single *Pipeline instance
//   - Extensibility via user supplied key functions, failure predicates and metrics
//
// Typical usage:
//
//	pipe, err := gerbang.New(
//	    gerbang.WithDeduplication(gerbang.DedupConfig{Window: 10 * time.Second}),
//	    gerbang.WithRateLimit(gerbang.RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute}),
//	    gerbang.WithBulkhead(gerbang.BulkheadConfig{MaxConcurrent: 64}),
//	    gerbang.WithCircuitBreaker(gerbang.CircuitBreakerConfig{}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", pipe.Middleware(mux))
//
// Stages run in a fixed order (dedup, coalesce, rate limit, bulkhead, shed,
// breaker, then the handler) and short-circuit to a structured JSON rejection
// at the first stage that denies. All state is process-local; running one
// pipeline per enforcement domain is the caller's responsibility.
package gerbang
