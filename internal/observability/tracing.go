// Package observability provides structured logging and OpenTelemetry
// tracing for the generation pipeline.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope of every span we start.
	TracerName = "github.com/nestauk/discovery-genai"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "genai")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "genai",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under genai.span.kind.
const (
	SpanKindGenerate  = "generate"
	SpanKindStage     = "stage"
	SpanKindLLM       = "llm"
	SpanKindRetrieval = "retrieval"
)

// StartGenerateSpan starts the root span of one generation request.
func StartGenerateSpan(ctx context.Context, model string, useRetrieval bool) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "generate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("genai.span.kind", SpanKindGenerate),
			attribute.String("llm.model", model),
			attribute.Bool("genai.use_retrieval", useRetrieval),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "generate."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("genai.span.kind", SpanKindStage),
			attribute.String("genai.stage", stage),
		),
	)
}

// StartLLMSpan starts a span for an LLM call.
func StartLLMSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("genai.span.kind", SpanKindLLM),
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		),
	)
}

// RecordLLMMetrics records LLM call metrics on a span.
func RecordLLMMetrics(span trace.Span, inputTokens, outputTokens int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("llm.input_tokens", inputTokens),
		attribute.Int("llm.output_tokens", outputTokens),
		attribute.Int("llm.total_tokens", inputTokens+outputTokens),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
}

// RecordRetrieval records how many documents a query asked for and got.
func RecordRetrieval(span trace.Span, k, returned int, best float64) {
	span.SetAttributes(
		attribute.String("genai.span.kind", SpanKindRetrieval),
		attribute.Int("retrieval.k", k),
		attribute.Int("retrieval.returned", returned),
	)
	if returned > 0 {
		span.SetAttributes(attribute.Float64("retrieval.best_distance", best))
	}
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
