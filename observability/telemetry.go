// Package observability provides tracing and metrics for the trigger pipeline.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/relayhub/pkg/config"
)

// TelemetryProvider provides observability features
type TelemetryProvider struct {
	config        *config.TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	// Metrics
	triggersReceived     metric.Int64Counter
	notificationsCreated metric.Int64Counter
	jobsProcessed        metric.Int64Counter
	jobsFailed           metric.Int64Counter
	triggerDuration      metric.Float64Histogram
	queueSize            metric.Int64UpDownCounter
}

// NewTelemetryProvider creates a new telemetry provider
func NewTelemetryProvider(cfg *config.TelemetryConfig) (*TelemetryProvider, error) {
	if cfg == nil {
		cfg = &config.TelemetryConfig{
			ServiceName:    "relayhub",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			OTLPEndpoint:   "http://localhost:4318",
			SampleRate:     1.0,
			Enabled:        false,
		}
	}

	tp := &TelemetryProvider{
		config: cfg,
	}

	if !cfg.Enabled {
		// Return no-op provider
		tp.tracer = otel.Tracer("relayhub")
		tp.meter = otel.Meter("relayhub")
		return tp, nil
	}

	if err := tp.initTracing(); err != nil {
		return nil, fmt.Errorf("init tracing: %v", err)
	}

	if err := tp.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %v", err)
	}

	return tp, nil
}

// initTracing initializes OpenTelemetry tracing
func (tp *TelemetryProvider) initTracing() error {
	// Create resource
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(tp.config.ServiceName),
			semconv.ServiceVersion(tp.config.ServiceVersion),
			semconv.DeploymentEnvironment(tp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %v", err)
	}

	// Create OTLP HTTP exporter
	exporter, err := otlptrace.New(context.Background(),
		otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(tp.config.OTLPEndpoint),
		),
	)
	if err != nil {
		return fmt.Errorf("create exporter: %v", err)
	}

	// Create trace provider
	tp.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(tp.config.SampleRate)),
	)

	// Set global trace provider
	otel.SetTracerProvider(tp.traceProvider)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Get tracer
	tp.tracer = otel.Tracer("relayhub",
		trace.WithInstrumentationVersion(tp.config.ServiceVersion),
		trace.WithSchemaURL(semconv.SchemaURL),
	)

	return nil
}

// initMetrics initializes OpenTelemetry metrics
func (tp *TelemetryProvider) initMetrics() error {
	// Get meter
	tp.meter = otel.Meter("relayhub",
		metric.WithInstrumentationVersion(tp.config.ServiceVersion),
		metric.WithSchemaURL(semconv.SchemaURL),
	)

	var err error

	// Create counters
	tp.triggersReceived, err = tp.meter.Int64Counter(
		"relayhub_triggers_received_total",
		metric.WithDescription("Total number of trigger requests received"),
	)
	if err != nil {
		return fmt.Errorf("create triggers_received counter: %v", err)
	}

	tp.notificationsCreated, err = tp.meter.Int64Counter(
		"relayhub_notifications_created_total",
		metric.WithDescription("Total number of notifications created"),
	)
	if err != nil {
		return fmt.Errorf("create notifications_created counter: %v", err)
	}

	tp.jobsProcessed, err = tp.meter.Int64Counter(
		"relayhub_jobs_processed_total",
		metric.WithDescription("Total number of delivery jobs processed"),
	)
	if err != nil {
		return fmt.Errorf("create jobs_processed counter: %v", err)
	}

	tp.jobsFailed, err = tp.meter.Int64Counter(
		"relayhub_jobs_failed_total",
		metric.WithDescription("Total number of delivery jobs failed"),
	)
	if err != nil {
		return fmt.Errorf("create jobs_failed counter: %v", err)
	}

	// Create histograms
	tp.triggerDuration, err = tp.meter.Float64Histogram(
		"relayhub_trigger_duration_seconds",
		metric.WithDescription("Duration of trigger processing"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create trigger_duration histogram: %v", err)
	}

	// Create up/down counters
	tp.queueSize, err = tp.meter.Int64UpDownCounter(
		"relayhub_queue_size",
		metric.WithDescription("Current queue size"),
	)
	if err != nil {
		return fmt.Errorf("create queue_size counter: %v", err)
	}

	return nil
}

// TraceOperation creates a new span for an operation
func (tp *TelemetryProvider) TraceOperation(ctx context.Context, operationName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	if tp == nil || tp.tracer == nil {
		// Return no-op span
		return ctx, trace.SpanFromContext(ctx)
	}

	return tp.tracer.Start(ctx, operationName,
		trace.WithAttributes(attributes...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceTrigger creates a span for trigger processing
func (tp *TelemetryProvider) TraceTrigger(ctx context.Context, templateName string, transactionID string, recipients int) (context.Context, trace.Span) {
	attributes := []attribute.KeyValue{
		attribute.String("relayhub.template.name", templateName),
		attribute.String("relayhub.transaction.id", transactionID),
		attribute.Int("relayhub.recipients.count", recipients),
		attribute.String("relayhub.operation", "trigger"),
	}

	return tp.TraceOperation(ctx, "relayhub.trigger", attributes...)
}

// TraceJob creates a span for delivery job processing
func (tp *TelemetryProvider) TraceJob(ctx context.Context, jobID string, channel string) (context.Context, trace.Span) {
	attributes := []attribute.KeyValue{
		attribute.String("relayhub.job.id", jobID),
		attribute.String("relayhub.channel", channel),
		attribute.String("relayhub.operation", "deliver"),
	}

	return tp.TraceOperation(ctx, "relayhub.deliver", attributes...)
}

// RecordTrigger records a processed trigger request
func (tp *TelemetryProvider) RecordTrigger(ctx context.Context, templateName string, subscribers int, duration time.Duration) {
	if tp == nil {
		return
	}

	if tp.triggersReceived != nil {
		tp.triggersReceived.Add(ctx, 1, metric.WithAttributes(
			attribute.String("template", templateName),
		))
	}

	if tp.notificationsCreated != nil {
		tp.notificationsCreated.Add(ctx, int64(subscribers), metric.WithAttributes(
			attribute.String("template", templateName),
		))
	}

	if tp.triggerDuration != nil {
		tp.triggerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("template", templateName),
		))
	}
}

// RecordJobProcessed records a completed delivery job
func (tp *TelemetryProvider) RecordJobProcessed(ctx context.Context, channel string) {
	if tp == nil {
		return
	}

	if tp.jobsProcessed != nil {
		tp.jobsProcessed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", "success"),
		))
	}
}

// RecordJobFailed records a failed delivery job
func (tp *TelemetryProvider) RecordJobFailed(ctx context.Context, channel string, errorType string) {
	if tp == nil {
		return
	}

	if tp.jobsFailed != nil {
		tp.jobsFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("error_type", errorType),
		))
	}
}

// UpdateQueueSize updates the current queue size
func (tp *TelemetryProvider) UpdateQueueSize(ctx context.Context, queueType string, size int64) {
	if tp == nil {
		return
	}

	if tp.queueSize != nil {
		tp.queueSize.Add(ctx, size, metric.WithAttributes(
			attribute.String("queue_type", queueType),
		))
	}
}

// SetSpanError sets an error on the current span
func (tp *TelemetryProvider) SetSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful
func (tp *TelemetryProvider) SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// Shutdown gracefully shuts down the telemetry provider
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.traceProvider == nil {
		return nil
	}
	return tp.traceProvider.Shutdown(ctx)
}

// GetTracer returns the tracer instance
func (tp *TelemetryProvider) GetTracer() trace.Tracer {
	return tp.tracer
}

// GetMeter returns the meter instance
func (tp *TelemetryProvider) GetMeter() metric.Meter {
	return tp.meter
}
