package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const meterScope = "github.com/gesa-research/pald-backend"

// Metrics holds the pipeline-level metrics.
type Metrics struct {
	ExtractionCount    metric.Int64Counter
	ExtractionDuration metric.Float64Histogram
	JobsProcessed      metric.Int64Counter
	JobsRetried        metric.Int64Counter
	JobsDeadLettered   metric.Int64Counter
	CacheHitCount      metric.Int64Counter
	CacheMissCount     metric.Int64Counter
}

// Setup initializes OpenTelemetry trace and metric export over OTLP/gRPC.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(meterScope)

	extractionCount, err := meter.Int64Counter(
		"pald.extraction.count",
		metric.WithDescription("Number of PALD extraction calls"),
	)
	if err != nil {
		return nil, err
	}

	extractionDuration, err := meter.Float64Histogram(
		"pald.extraction.duration",
		metric.WithDescription("PALD extraction duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	jobsProcessed, err := meter.Int64Counter(
		"bias.jobs.processed",
		metric.WithDescription("Number of bias jobs completed successfully"),
	)
	if err != nil {
		return nil, err
	}

	jobsRetried, err := meter.Int64Counter(
		"bias.jobs.retried",
		metric.WithDescription("Number of bias job retries scheduled"),
	)
	if err != nil {
		return nil, err
	}

	jobsDeadLettered, err := meter.Int64Counter(
		"bias.jobs.dead_lettered",
		metric.WithDescription("Number of bias jobs moved to the DLQ"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of extraction cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of extraction cache misses"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ExtractionCount:    extractionCount,
		ExtractionDuration: extractionDuration,
		JobsProcessed:      jobsProcessed,
		JobsRetried:        jobsRetried,
		JobsDeadLettered:   jobsDeadLettered,
		CacheHitCount:      cacheHitCount,
		CacheMissCount:     cacheMissCount,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(meterScope)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordExtractionMetric records one extraction call outcome.
func RecordExtractionMetric(ctx context.Context, metrics *Metrics, success bool, cached bool, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("pald.extraction.success", success),
		attribute.Bool("pald.extraction.cached", cached),
	}
	metrics.ExtractionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.ExtractionDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordJobOutcome records the resolution of one bias analysis job.
func RecordJobOutcome(ctx context.Context, metrics *Metrics, status string) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("job.status", status))
	metrics.JobsProcessed.Add(ctx, 1, attrs)
	switch status {
	case "RETRY":
		metrics.JobsRetried.Add(ctx, 1)
	case "DLQ":
		metrics.JobsDeadLettered.Add(ctx, 1)
	}
}

// RecordCacheHit records an extraction cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1)
}

// RecordCacheMiss records an extraction cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1)
}
