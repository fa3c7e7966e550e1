package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, 900)
	m.RecordUtterance(ctx, 450)
	m.RecordRetry(ctx)
	m.RecordFailure(ctx, "unrecoverable")
	m.RecordStale(ctx, "end")
	m.RecordStale(ctx, "progress")
	m.RecordCommand(ctx, "next", "host")

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"recite.utterances", 2},
		{"recite.retries", 1},
		{"recite.failures", 1},
		{"recite.stale_events", 2},
		{"recite.commands", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sumOf(t, rm, tt.name); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}

	met := findMetric(rm, "recite.chunk.chars")
	if met == nil {
		t.Fatal("chunk histogram missing")
	}
	hist, ok := met.Data.(metricdata.Histogram[int64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("chunk histogram has no data")
	}
	if hist.DataPoints[0].Count != 2 || hist.DataPoints[0].Sum != 1350 {
		t.Errorf("histogram count=%d sum=%d", hist.DataPoints[0].Count, hist.DataPoints[0].Sum)
	}
}

func TestFailureAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordFailure(context.Background(), "unavailable")

	met := findMetric(collect(t, reader), "recite.failures")
	sum := met.Data.(metricdata.Sum[int64])
	v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("reason"))
	if !ok || v.AsString() != "unavailable" {
		t.Errorf("reason attribute = %v, %v", v, ok)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordUtterance(ctx, 1)
	m.RecordRetry(ctx)
	m.RecordFailure(ctx, "x")
	m.RecordStale(ctx, "x")
	m.RecordCommand(ctx, "x", "y")
}
