package gerbang

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector == nil {
		t.Fatal("NewMetricsCollectorWithRegistry() returned nil")
	}

	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}
	if collector.requestDuration == nil {
		t.Error("requestDuration metric not initialized")
	}
	if collector.requestsInFlight == nil {
		t.Error("requestsInFlight metric not initialized")
	}
	if collector.rejectionsTotal == nil {
		t.Error("rejectionsTotal metric not initialized")
	}
	if collector.deduplicationHits == nil {
		t.Error("deduplicationHits metric not initialized")
	}
	if collector.coalescedTotal == nil {
		t.Error("coalescedTotal metric not initialized")
	}
	if collector.circuitBreakerState == nil {
		t.Error("circuitBreakerState metric not initialized")
	}
	if collector.bulkheadActive == nil {
		t.Error("bulkheadActive metric not initialized")
	}
	if collector.bulkheadQueueDepth == nil {
		t.Error("bulkheadQueueDepth metric not initialized")
	}
	if collector.errorsTotal == nil {
		t.Error("errorsTotal metric not initialized")
	}

	if collector.GetRegistry() != registry {
		t.Error("GetRegistry() did not return the supplied registry")
	}
}

func TestRecordRequestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	collector.RecordRequestStart("GET", "/orders")
	collector.RecordRequest("GET", "/orders", 200, 15*time.Millisecond)
	collector.RecordRequestEnd("GET", "/orders")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"gerbang_requests_total",
		"gerbang_request_duration_seconds",
		"gerbang_requests_in_flight",
	} {
		if !found[name] {
			t.Errorf("Expected metric family %s to be gathered", name)
		}
	}
}

func TestRecordStageMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	collector.RecordRejection(StageShed, "GET", "/orders")
	collector.RecordDeduplicationHit("POST", "/orders")
	collector.RecordCoalesced("GET", "/catalog")
	collector.RecordCircuitBreakerState("GET:/upstream", StateOpen)
	collector.RecordBulkhead("default", 3, 1)
	collector.RecordError(ErrorTypeDownstream, "GET", "/orders")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"gerbang_rejections_total",
		"gerbang_deduplication_hits_total",
		"gerbang_coalesced_total",
		"gerbang_circuit_breaker_state",
		"gerbang_bulkhead_active",
		"gerbang_bulkhead_queue_depth",
		"gerbang_errors_total",
	} {
		if !found[name] {
			t.Errorf("Expected metric family %s to be gathered", name)
		}
	}
}

func TestCircuitBreakerStateGaugeValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	collector.RecordCircuitBreakerState("GET:/a", StateHalfOpen)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "gerbang_circuit_breaker_state" {
			continue
		}
		if len(mf.GetMetric()) != 1 {
			t.Fatalf("Expected one series, got %d", len(mf.GetMetric()))
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 2 {
			t.Errorf("Expected half-open encoded as 2, got %v", got)
		}
		return
	}
	t.Fatal("gerbang_circuit_breaker_state not gathered")
}

func TestNilMetricsCollectorIsSafe(t *testing.T) {
	var collector *MetricsCollector

	collector.RecordRequest("GET", "/orders", 200, time.Millisecond)
	collector.RecordRequestStart("GET", "/orders")
	collector.RecordRequestEnd("GET", "/orders")
	collector.RecordRejection(StageDedup, "POST", "/orders")
	collector.RecordDeduplicationHit("POST", "/orders")
	collector.RecordCoalesced("GET", "/orders")
	collector.RecordCircuitBreakerState("GET:/a", StateOpen)
	collector.RecordBulkhead("default", 0, 0)
	collector.RecordError(ErrorTypeDownstream, "GET", "/orders")

	if collector.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}
