// Package telemetry sets up OpenTelemetry tracing. Tracing is opt-in: without an OTLP
// endpoint every tracer is a no-op and nothing is exported.
package telemetry

import (
	"context"

	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/tech-arch1tect/authd"

type Provider struct {
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
	shutdown       func(context.Context) error
}

// NewProvider wraps an existing tracer provider. Tests use it with an in-memory recorder.
func NewProvider(tp trace.TracerProvider) *Provider {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Provider{
		tracerProvider: tp,
		propagator:     propagation.TraceContext{},
		shutdown:       func(context.Context) error { return nil },
	}
}

// Setup builds the OTLP/HTTP exporting provider when an endpoint is configured and
// registers it globally.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if cfg.Endpoint == "" {
		return NewProvider(nil), nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracerProvider: tp,
		propagator:     propagation.TraceContext{},
		shutdown:       tp.Shutdown,
	}, nil
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

func (p *Provider) Propagator() propagation.TextMapPropagator {
	return p.propagator
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

func ProvideTelemetry(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (*Provider, error) {
	provider, err := Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Endpoint != "" {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.Telemetry.Endpoint))
	}

	lc.Append(fx.Hook{
		OnStop: provider.Shutdown,
	})

	return provider, nil
}

var Module = fx.Options(
	fx.Provide(ProvideTelemetry),
)
