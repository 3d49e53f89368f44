package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxreply/internal/logging"
)

// RunRecord captures one workflow run for the audit trail.
//
// # Privacy Considerations
//
// Sender and Question contain PII. LogAttrs only carries the sender domain
// and an anonymized sender hash; LogAuditAttrs carries both in full.
type RunRecord struct {
	RunID    string
	ThreadID string
	Sender   string
	Subject  string
	Question string

	// Outcome
	Action string
	Reason string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewRunRecord creates a RunRecord with timing started.
// Call Complete() when the run finishes.
func NewRunRecord(runID string) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		StartTime: time.Now(),
	}
}

// WithMessage sets the inbound message details.
func (r *RunRecord) WithMessage(threadID, sender, subject, question string) *RunRecord {
	r.ThreadID = threadID
	r.Sender = sender
	r.Subject = subject
	r.Question = question
	return r
}

// WithSpanContext extracts trace context from the current span.
func (r *RunRecord) WithSpanContext(ctx context.Context) *RunRecord {
	r.TraceID = GetTraceID(ctx)
	r.SpanID = GetSpanID(ctx)
	return r
}

// Complete marks the run as finished with the given outcome.
func (r *RunRecord) Complete(action, reason string, err error) *RunRecord {
	r.Duration = time.Since(r.StartTime)
	r.Action = action
	r.Reason = reason
	r.Success = err == nil
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Status returns "success" or "error" based on the Success field.
func (r *RunRecord) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusError
}

// SenderDomain returns the domain of the sender for lower-cardinality logging.
func (r *RunRecord) SenderDomain() string {
	return ExtractUserDomain(r.Sender)
}

// LogAttrs returns anonymized attributes suitable for general logs.
func (r *RunRecord) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("run_id", r.RunID),
		slog.String("thread_id", r.ThreadID),
		slog.String("sender_domain", r.SenderDomain()),
		slog.String("sender_hash", logging.AnonymizeEmail(r.Sender)),
		slog.String("action", r.Action),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}
	return r.appendOptional(attrs)
}

// LogAuditAttrs returns attributes including the full sender and question.
//
// # Security Warning
//
// This method includes PII. Ensure audit logs are stored securely.
func (r *RunRecord) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("run_id", r.RunID),
		slog.String("thread_id", r.ThreadID),
		slog.String("sender", r.Sender),
		slog.String("subject", r.Subject),
		slog.String("question", r.Question),
		slog.String("action", r.Action),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	return r.appendOptional(attrs)
}

func (r *RunRecord) appendOptional(attrs []slog.Attr) []slog.Attr {
	if r.Reason != "" {
		attrs = append(attrs, slog.String("reason", r.Reason))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per finished workflow run.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogRun writes r. A nil AuditLogger is a no-op.
func (al *AuditLogger) LogRun(ctx context.Context, r *RunRecord) {
	if al == nil || !al.enabled || r == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = r.LogAuditAttrs()
	} else {
		attrs = r.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "workflow_run"
	if !r.Success {
		level = slog.LevelWarn
		msg = "workflow_run_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
