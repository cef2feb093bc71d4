package observability

import (
	"github.com/smallbiznis/tally/internal/observability/metrics"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires the OTel metric pipeline and the Prometheus HTTP metrics.
// The zap logger and the tracer provider come from pkg/log and
// pkg/telemetry respectively.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(ensureSchedulerMetrics),
	fx.Invoke(ensureTracingProvider),
)

// Forces the lazy Fx graph to build the tracer provider so the global
// otel tracer is installed even though nothing injects it directly.
func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func ensureSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}
