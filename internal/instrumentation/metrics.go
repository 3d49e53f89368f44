package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrTool      = "tool"
	attrStage     = "stage"
	attrAction    = "action"
	attrSource    = "source"
	attrModel     = "model"
	attrOutcome   = "outcome"
	attrDomain    = "sender_domain"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Workflow metrics
	workflowRunsTotal     metric.Int64Counter
	workflowRunDuration   metric.Float64Histogram
	workflowStageDuration metric.Float64Histogram
	escalationsTotal      metric.Int64Counter

	// Model and retrieval metrics
	llmRequestsTotal   metric.Int64Counter
	llmRequestDuration metric.Float64Histogram
	retrievalPassages  metric.Int64Histogram
	retrievalDuration  metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// Queue metrics
	queueJobsTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

var (
	latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}
	runBuckets     = []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180}
)

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Workflow Metrics
	if m.workflowRunsTotal, err = meter.Int64Counter(
		"workflow_runs_total",
		metric.WithDescription("Total number of support workflow runs by terminal action"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create workflow_runs_total counter: %w", err)
	}

	if m.workflowRunDuration, err = meter.Float64Histogram(
		"workflow_run_duration_seconds",
		metric.WithDescription("Support workflow run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create workflow_run_duration_seconds histogram: %w", err)
	}

	if m.workflowStageDuration, err = meter.Float64Histogram(
		"workflow_stage_duration_seconds",
		metric.WithDescription("Duration of a single workflow stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create workflow_stage_duration_seconds histogram: %w", err)
	}

	if m.escalationsTotal, err = meter.Int64Counter(
		"escalations_total",
		metric.WithDescription("Total number of escalations to a human by source"),
		metric.WithUnit("{escalation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create escalations_total counter: %w", err)
	}

	// Model and retrieval Metrics
	if m.llmRequestsTotal, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of language model requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm_requests_total counter: %w", err)
	}

	if m.llmRequestDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("Language model request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm_request_duration_seconds histogram: %w", err)
	}

	if m.retrievalPassages, err = meter.Int64Histogram(
		"retrieval_passages",
		metric.WithDescription("Number of passages returned per knowledge retrieval"),
		metric.WithUnit("{passage}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval_passages histogram: %w", err)
	}

	if m.retrievalDuration, err = meter.Float64Histogram(
		"retrieval_duration_seconds",
		metric.WithDescription("Knowledge retrieval duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval_duration_seconds histogram: %w", err)
	}

	// Google API Metrics
	if m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	if m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// Queue Metrics
	if m.queueJobsTotal, err = meter.Int64Counter(
		"queue_jobs_total",
		metric.WithDescription("Total number of queue job transitions by outcome"),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create queue_jobs_total counter: %w", err)
	}

	// MCP Tool Metrics
	if m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordWorkflowRun records a finished workflow run.
//
// Parameters:
//   - action: terminal action ("sent", "escalated"), empty when the run failed
//   - status: "success" or "error"
//   - duration: wall time of the whole run
func (m *Metrics) RecordWorkflowRun(ctx context.Context, action, status string, duration time.Duration) {
	if m == nil || m.workflowRunsTotal == nil || m.workflowRunDuration == nil {
		return // Instrumentation not initialized
	}
	if action == "" {
		action = StatusUnknown
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrAction, action),
		attribute.String(attrStatus, status),
	}

	m.workflowRunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.workflowRunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordWorkflowStage records the duration of one workflow stage.
func (m *Metrics) RecordWorkflowStage(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil || m.workflowStageDuration == nil {
		return // Instrumentation not initialized
	}

	m.workflowStageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	))
}

// RecordEscalation records an escalation handed to a human. senderDomain is
// only attached when detailed labels are enabled.
func (m *Metrics) RecordEscalation(ctx context.Context, source, senderDomain string) {
	if m == nil || m.escalationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrSource, source),
	}
	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && senderDomain != "" {
		attrs = append(attrs, attribute.String(attrDomain, senderDomain))
	}

	m.escalationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLLMRequest records a language model call.
//
// Parameters:
//   - model: model identifier (e.g., "gemini-2.5-flash")
//   - operation: "complete" or "embed"
//   - status: "success" or "error"
func (m *Metrics) RecordLLMRequest(ctx context.Context, model, operation, status string, duration time.Duration) {
	if m == nil || m.llmRequestsTotal == nil || m.llmRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrModel, model),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.llmRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetrieval records a knowledge retrieval and the number of passages it returned.
func (m *Metrics) RecordRetrieval(ctx context.Context, status string, passages int, duration time.Duration) {
	if m == nil || m.retrievalPassages == nil || m.retrievalDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.retrievalDuration.Record(ctx, duration.Seconds(), attrs)
	if status == StatusSuccess {
		m.retrievalPassages.Record(ctx, int64(passages), attrs)
	}
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail)
//   - operation: Operation type (list, get, send, modify, watch)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordQueueJob records a queue transition. Outcome is one of the
// QueueOutcome constants.
func (m *Metrics) RecordQueueJob(ctx context.Context, outcome string) {
	if m == nil || m.queueJobsTotal == nil {
		return // Instrumentation not initialized
	}

	m.queueJobsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
