package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"

	pistilotel "github.com/petal-labs/pistil/otel"
	"github.com/petal-labs/pistil/tool"
)

// newTestMeter creates a manual-read meter provider for metric assertions.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer")
	tracer := noop.NewTracerProvider().Tracer("test-tool-observer")

	observer, err := pistilotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		Tool:        "weather",
		DurationMS:  120,
		Success:     false,
		FailureKind: tool.KindUnavailable,
	})
	observer.ObserveInvoke(tool.InvokeObservation{
		Tool:       "weather",
		DurationMS: 80,
		Success:    true,
	})
	observer.ObserveRetry(tool.RetryObservation{
		Tool:    "weather",
		Attempt: 1,
		Cause:   "TIMEOUT: request timed out",
	})
	observer.ObserveHealth(tool.HealthObservation{
		Tool:         "weather",
		State:        tool.HealthUnhealthy,
		FailureCount: 3,
		DurationMS:   45,
		Cause:        "REJECTED: authentication rejected by upstream",
	})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, "pistil.tool.invocations")
	if invocations == nil {
		t.Fatal("pistil.tool.invocations metric not found")
	}
	sum, ok := invocations.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("pistil.tool.invocations type = %T, want Sum[int64]", invocations.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Fatalf("invocations total = %d, want 2", total)
	}

	retries := findMetric(rm, "pistil.tool.retries")
	if retries == nil {
		t.Fatal("pistil.tool.retries metric not found")
	}
	if _, ok := retries.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("pistil.tool.retries type = %T, want Sum[int64]", retries.Data)
	}

	health := findMetric(rm, "pistil.tool.health.checks")
	if health == nil {
		t.Fatal("pistil.tool.health.checks metric not found")
	}
	if _, ok := health.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("pistil.tool.health.checks type = %T, want Sum[int64]", health.Data)
	}

	latency := findMetric(rm, "pistil.tool.latency")
	if latency == nil {
		t.Fatal("pistil.tool.latency metric not found")
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("pistil.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}
}

func TestToolObserverImplementsObserver(t *testing.T) {
	_, mp := newTestMeter()
	observer, err := pistilotel.NewToolObserver(mp.Meter("iface"), noop.NewTracerProvider().Tracer("iface"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	tool.SetObserver(observer)
	defer tool.SetObserver(nil)
}
