// Package telemetry wires OpenTelemetry tracing and metrics for the segment
// pipeline: resource and tracer/meter provider construction, OTLP-or-local
// exporter selection, and graceful shutdown.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls exporter selection.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // empty => local-only tracer provider, no export
	PrometheusMode bool   // true => metrics readable via otel's Prometheus bridge
	SampleRatio    float64
}

// Manager owns the tracer/meter providers for one player instance.
type Manager struct {
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
}

// New builds a Manager and installs it as the process-global OTel
// tracer/meter providers.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.SampleRatio <= 0 {
		cfg.SampleRatio = 1
	}

	res, err := resource.New(ctx, resource.WithAttributes())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var tp *sdktrace.TracerProvider
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build OTLP exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
	} else {
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
	}

	var mp *sdkmetric.MeterProvider
	if cfg.PrometheusMode {
		exporter, err := otelprom.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: build Prometheus exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	} else {
		mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Manager{
		tracer: tp.Tracer(cfg.ServiceName),
		meter:  mp.Meter(cfg.ServiceName),
		shutdown: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
			}
			if err := mp.Shutdown(ctx); err != nil {
				return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
			}
			return nil
		},
	}, nil
}

// StartSegmentFetchSpan starts a span around one segment fetch attempt.
func (m *Manager) StartSegmentFetchSpan(ctx context.Context, representationID string, attempt int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "segment.fetch",
		trace.WithAttributes(
			attribute.String("representation.id", representationID),
			attribute.Int("attempt", attempt),
		))
}

// Shutdown flushes and tears down the tracer/meter providers. Safe to call
// once.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}
