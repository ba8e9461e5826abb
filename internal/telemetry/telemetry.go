package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "piiscan"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes recording helpers.
// A nil *Provider is valid and records nothing.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requestsCounter       metric.Int64Counter
	requestDuration       metric.Float64Histogram
	categoryResults       metric.Int64Counter
	categoryDuration      metric.Float64Histogram
	matchesCounter        metric.Int64Counter
	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewNoop returns a provider backed by no-op tracer and meter.
func NewNoop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

// NewProvider configures OTLP exporters. When disabled, returns NewNoop().
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if protocol == "" {
		protocol = "grpc"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var (
		spanExporter sdktrace.SpanExporter
		reader       sdkmetric.Reader
	)
	switch protocol {
	case "grpc":
		spanExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	case "http":
		spanExporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q", cfg.Protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer(instrumentationName),
		meter:                 mp.Meter(instrumentationName),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry is best-effort.
	p.requestsCounter, _ = p.meter.Int64Counter("piiscan_requests_total")
	p.requestDuration, _ = p.meter.Float64Histogram("piiscan_request_duration_ms")
	p.categoryResults, _ = p.meter.Int64Counter("piiscan_category_results_total")
	p.categoryDuration, _ = p.meter.Float64Histogram("piiscan_category_duration_ms")
	p.matchesCounter, _ = p.meter.Int64Counter("piiscan_matches_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// StartSpan starts a span with filtered attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs map[string]interface{}) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs)...))
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.shutdownTraceProvider != nil {
		firstErr = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		if err := p.shutdownMeterProvider(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecordRequest counts one extraction request. outcome is "ok" or an error
// class such as "bad_request".
func (p *Provider) RecordRequest(ctx context.Context, source, outcome string, durMs float64) {
	if p == nil || p.requestsCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("piiscan.source", source),
		attribute.String("piiscan.outcome", outcome),
	)
	p.requestsCounter.Add(ctx, 1, attrs)
	p.requestDuration.Record(ctx, durMs, attrs)
}

// RecordCategory records one category resolution. Only counts are recorded,
// never matched values.
func (p *Provider) RecordCategory(ctx context.Context, category, outcome string, matches int, durMs float64) {
	if p == nil || p.categoryResults == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("piiscan.category", category),
		attribute.String("piiscan.outcome", outcome),
	)
	p.categoryResults.Add(ctx, 1, attrs)
	p.categoryDuration.Record(ctx, durMs, attrs)
	if matches > 0 {
		p.matchesCounter.Add(ctx, int64(matches), metric.WithAttributes(attribute.String("piiscan.category", category)))
	}
}
