package gerbang

import (
	"fmt"
)

// WithFingerprint sets the fingerprint configuration
func WithFingerprint(config FingerprintConfig) Option {
	return func(p *Pipeline) {
		p.fingerprinter = NewFingerprinter(config)
	}
}

// WithDeduplication enables request deduplication
func WithDeduplication(config DedupConfig) Option {
	return func(p *Pipeline) {
		p.deduplicator = NewDeduplicator(config)
	}
}

// WithCoalescing enables request coalescing
func WithCoalescing(config CoalesceConfig) Option {
	return func(p *Pipeline) {
		p.coalescer = NewCoalescer(config)
	}
}

// WithRateLimit enables keyed rate limiting
func WithRateLimit(config RateLimitConfig) Option {
	return func(p *Pipeline) {
		p.rateLimiter = NewKeyedRateLimiter(config)
	}
}

// WithBulkhead enables the bounded-concurrency bulkhead
func WithBulkhead(config BulkheadConfig) Option {
	return func(p *Pipeline) {
		p.bulkhead = NewBulkhead(config)
	}
}

// WithLoadShedding enables probabilistic load shedding
func WithLoadShedding(config LoadShedderConfig) Option {
	return func(p *Pipeline) {
		p.shedder = NewLoadShedder(config)
	}
}

// WithCircuitBreaker enables the keyed circuit breaker
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(p *Pipeline) {
		p.breaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(p *Pipeline) {
		p.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(p *Pipeline) {
		p.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(p *Pipeline) {
		p.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.Enabled = true
		p.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the pipeline configuration and returns an
// error if invalid. New calls this after applying options, so a pipeline that
// constructs successfully is safe to serve traffic.
func (p *Pipeline) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, p.validateDedupConfig()...)
	errors = append(errors, p.validateCoalesceConfig()...)
	errors = append(errors, p.validateRateLimitConfig()...)
	errors = append(errors, p.validateBulkheadConfig()...)
	errors = append(errors, p.validateShedderConfig()...)
	errors = append(errors, p.validateCircuitBreakerConfig()...)
	errors = append(errors, p.validateDebugConfig()...)

	if len(errors) > 0 {
		return &PipelineError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

// validateDedupConfig validates deduplication configuration
func (p *Pipeline) validateDedupConfig() []string {
	var errors []string

	if p.deduplicator != nil {
		if p.deduplicator.window <= 0 {
			errors = append(errors, "deduplication Window must be positive")
		}
	}

	return errors
}

// validateCoalesceConfig validates coalescing configuration
func (p *Pipeline) validateCoalesceConfig() []string {
	var errors []string

	if p.coalescer != nil {
		if p.coalescer.joinWindow <= 0 {
			errors = append(errors, "coalescing JoinWindow must be positive")
		}
	}

	return errors
}

// validateRateLimitConfig validates rate limiter configuration
func (p *Pipeline) validateRateLimitConfig() []string {
	var errors []string

	if p.rateLimiter != nil {
		if p.rateLimiter.limit <= 0 {
			errors = append(errors, "rate limiter RequestsPerWindow must be positive")
		}
		if p.rateLimiter.window <= 0 {
			errors = append(errors, "rate limiter Window must be positive")
		}
		if p.rateLimiter.burst < 0 {
			errors = append(errors, "rate limiter BurstSize must be non-negative")
		}
		if p.rateLimiter.subWindows <= 0 {
			errors = append(errors, "rate limiter SubWindows must be positive")
		}
	}

	return errors
}

// validateBulkheadConfig validates bulkhead configuration
func (p *Pipeline) validateBulkheadConfig() []string {
	var errors []string

	if p.bulkhead != nil {
		if p.bulkhead.maxConcurrent <= 0 {
			errors = append(errors, "bulkhead MaxConcurrent must be positive")
		}
		if p.bulkhead.timeout <= 0 {
			errors = append(errors, "bulkhead Timeout must be positive")
		}
	}

	return errors
}

// validateShedderConfig validates load shedder configuration
func (p *Pipeline) validateShedderConfig() []string {
	var errors []string

	if p.shedder != nil {
		if p.shedder.maxConcurrent <= 0 {
			errors = append(errors, "load shedder MaxConcurrent must be positive")
		}
		if p.shedder.probability <= 0 || p.shedder.probability > 1 {
			errors = append(errors, "load shedder ShedProbability must be in (0, 1]")
		}
	}

	return errors
}

// validateCircuitBreakerConfig validates circuit breaker configuration
func (p *Pipeline) validateCircuitBreakerConfig() []string {
	var errors []string

	if p.breaker != nil {
		if p.breaker.failureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if p.breaker.recoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if p.breaker.halfOpenRequests <= 0 {
			errors = append(errors, "circuitBreaker HalfOpenRequests must be positive")
		}
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (p *Pipeline) validateDebugConfig() []string {
	var errors []string

	if p.debug != nil && p.debug.Enabled {
		if p.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if p.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}
