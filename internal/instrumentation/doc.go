// Package instrumentation provides OpenTelemetry instrumentation for the
// inboxreply support responder.
//
// # Metrics
//
// Workflow Metrics:
//   - workflow_runs_total: Counter of runs by terminal action and status
//   - workflow_run_duration_seconds: Histogram of end-to-end run durations
//   - workflow_stage_duration_seconds: Histogram of per-stage durations
//   - escalations_total: Counter of escalations by source (guard, review, send)
//
// Model and Retrieval Metrics:
//   - llm_requests_total / llm_request_duration_seconds: by model, operation, status
//   - retrieval_passages / retrieval_duration_seconds
//
// Google API Metrics:
//   - google_api_operations_total / google_api_operation_duration_seconds
//
// Queue Metrics:
//   - queue_jobs_total: by outcome (enqueued, processed, retried, requeued, dead, duplicate)
//
// Server/HTTP and MCP Metrics:
//   - http_requests_total / http_request_duration_seconds
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for each dequeued job (queue.job), each workflow run
// (workflow.run), each stage (workflow.<stage>), model calls
// (llm.<operation>), Gmail calls (google.gmail.<operation>) and MCP tools
// (tool.<name>).
//
// # Configuration
//
// Config is filled from the instrumentation and audit sections of the
// application config (INBOXREPLY_INSTRUMENTATION_* and INBOXREPLY_AUDIT_*
// in the environment). Metrics go to Prometheus (default), OTLP or stdout;
// traces to OTLP, stdout or nowhere (default).
//
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordWorkflowRun(ctx, "sent", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
