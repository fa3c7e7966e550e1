// Package observe records narration metrics through the OpenTelemetry
// metrics API. InitProvider installs an SDK provider as the global one;
// until then the global provider is a no-op, so recording is always safe.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dgnsrekt/recite"

// Metrics holds the narration instruments.
type Metrics struct {
	// Utterances counts requests handed to the backend.
	Utterances metric.Int64Counter
	// ChunkChars records the length of each request in runes.
	ChunkChars metric.Int64Histogram
	// Retries counts shorten-and-retry attempts.
	Retries metric.Int64Counter
	// Failures counts failures. Use with attribute "reason".
	Failures metric.Int64Counter
	// StaleEvents counts dropped callbacks. Use with attribute "event".
	StaleEvents metric.Int64Counter
	// Commands counts navigation commands. Use with attributes "action"
	// and "via".
	Commands metric.Int64Counter
}

var chunkBuckets = []float64{50, 100, 200, 400, 600, 900}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("recite.utterances",
		metric.WithDescription("Requests handed to the narration backend."),
	); err != nil {
		return nil, err
	}
	if met.ChunkChars, err = m.Int64Histogram("recite.chunk.chars",
		metric.WithDescription("Length of narration requests."),
		metric.WithUnit("{rune}"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("recite.retries",
		metric.WithDescription("Shorten-and-retry attempts after backend errors."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("recite.failures",
		metric.WithDescription("Narration failures."),
	); err != nil {
		return nil, err
	}
	if met.StaleEvents, err = m.Int64Counter("recite.stale_events",
		metric.WithDescription("Backend callbacks dropped because their request was superseded."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("recite.commands",
		metric.WithDescription("Navigation commands issued."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built on the global
// provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUtterance counts one request of n runes.
func (m *Metrics) RecordUtterance(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1)
	m.ChunkChars.Record(ctx, int64(n))
}

// RecordRetry counts one retry.
func (m *Metrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.Retries.Add(ctx, 1)
}

// RecordFailure counts one failure.
func (m *Metrics) RecordFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordStale counts one dropped callback.
func (m *Metrics) RecordStale(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.StaleEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordCommand counts one navigation command.
func (m *Metrics) RecordCommand(ctx context.Context, action, via string) {
	if m == nil {
		return
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("via", via),
	))
}
