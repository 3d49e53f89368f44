package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scopeName is the instrumentation scope of every span and instrument.
const scopeName = "github.com/teemow/inboxreply"

// Span attribute keys.
const (
	SpanAttrRunID     = "workflow.run_id"
	SpanAttrStage     = "workflow.stage"
	SpanAttrThreadID  = "mail.thread_id"
	SpanAttrTool      = "mcp.tool"
	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"
	SpanAttrModel     = "llm.model"
	SpanAttrJobID     = "queue.job_id"
	SpanAttrAttempt   = "queue.attempt"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithThread adds the mail thread attribute.
func (b *SpanAttributeBuilder) WithThread(threadID string) *SpanAttributeBuilder {
	if threadID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrThreadID, threadID))
	}
	return b
}

// WithJob adds queue job attributes.
func (b *SpanAttributeBuilder) WithJob(jobID string, attempt int) *SpanAttributeBuilder {
	if jobID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrJobID, jobID))
	}
	b.attrs = append(b.attrs, attribute.Int(SpanAttrAttempt, attempt))
	return b
}

// WithModel adds the model attribute.
func (b *SpanAttributeBuilder) WithModel(model string) *SpanAttributeBuilder {
	if model != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrModel, model))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(scopeName)
}

// StartJobSpan starts the span of one queued job; the workflow run span
// becomes its child. The caller ends the span.
func StartJobSpan(ctx context.Context, jobID, threadID string, attempt int) (context.Context, trace.Span) {
	attrs := NewSpanAttributeBuilder().WithJob(jobID, attempt).WithThread(threadID).Build()
	return tracer().Start(ctx, "queue.job",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartWorkflowSpan starts the root span of one workflow run.
func StartWorkflowSpan(ctx context.Context, runID, threadID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String(SpanAttrRunID, runID),
			attribute.String(SpanAttrThreadID, threadID),
		),
	)
}

// StartStageSpan starts a span for one workflow stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "workflow."+stage,
		trace.WithAttributes(attribute.String(SpanAttrStage, stage)),
	)
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartGoogleAPISpan starts a span for Google API operations.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartLLMSpan starts a client span for a model call.
func StartLLMSpan(ctx context.Context, model, operation string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "llm."+operation,
		trace.WithAttributes(NewSpanAttributeBuilder().WithModel(model).Build()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
