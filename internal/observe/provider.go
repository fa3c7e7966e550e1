package observe

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultExportInterval is how often metrics are pushed to the exporter.
const DefaultExportInterval = 30 * time.Second

// ProviderConfig configures the OpenTelemetry metrics SDK.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "recite".
	ServiceName    string
	ServiceVersion string

	// Exporter receives collected metrics. Default: a LogExporter on
	// log.Default().
	Exporter sdkmetric.Exporter
	// Interval between exports. Default: DefaultExportInterval.
	Interval time.Duration
}

// InitProvider installs a MeterProvider with a periodic reader on the
// configured exporter as the global provider. The returned shutdown flushes
// a final export and must be called before exit.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "recite"
	}
	if cfg.Exporter == nil {
		cfg.Exporter = NewLogExporter(nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultExportInterval
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(cfg.Exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// LogExporter writes every data point to a charmbracelet logger at debug
// level.
type LogExporter struct {
	logger *log.Logger
}

// NewLogExporter returns a LogExporter. A nil logger means log.Default().
func NewLogExporter(l *log.Logger) *LogExporter {
	if l == nil {
		l = log.Default()
	}
	return &LogExporter{logger: l.WithPrefix("metrics")}
}

func (e *LogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *LogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *LogExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					e.logger.Debug(m.Name, "value", dp.Value, "attrs", encode(dp.Attributes))
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					e.logger.Debug(m.Name, "count", dp.Count, "sum", dp.Sum, "attrs", encode(dp.Attributes))
				}
			default:
				e.logger.Debug(m.Name, "data", data)
			}
		}
	}
	return nil
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error { return nil }

func encode(s attribute.Set) string {
	return s.Encoded(attribute.DefaultEncoder())
}
