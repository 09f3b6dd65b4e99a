package otelcol

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/otelcol/exporters"
)

var Module = fx.Module("otelcol",
	fx.Invoke(Register),
)

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

// NewExporter builds the OTLP span exporter selected by OTEL.EXPORTER.
func NewExporter(cfg *config.Config) (trace.SpanExporter, error) {
	switch cfg.Otel.Exporter {
	case "grpc":
		return exporters.ProvideGrpc(cfg)
	case "http", "":
		return exporters.ProvideHttp(cfg)
	default:
		return nil, fmt.Errorf("unknown OTEL.EXPORTER %q", cfg.Otel.Exporter)
	}
}

// Register installs a global tracer provider when OTEL.ENABLE is set. Spans
// are otherwise dropped by the default no-op provider.
func Register(lc fx.Lifecycle, cfg *config.Config) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if !cfg.Otel.Enable {
		return nil
	}

	exporter, err := NewExporter(cfg)
	if err != nil {
		return err
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	zap.L().Info("[Otel] tracing enabled",
		zap.String("exporter", cfg.Otel.Exporter), zap.String("endpoint", cfg.Otel.Endpoint))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return nil
}
