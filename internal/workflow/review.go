package workflow

import (
	"context"
	"log/slog"

	"github.com/teemow/inboxreply/internal/logging"
)

const (
	reasonReviewTemplateMissing = "System Error: Manager prompt not found."
	reasonReviewInvalidOutput   = "Invalid format from manager model."
	reasonReviewModelError      = "Manager model call failed."
)

// Reviewer decides whether a draft may be sent without a human.
// The escalation checklist lives in the review template; Reviewer only
// relays the model's structured verdict.
type Reviewer struct {
	completer Completer
	prompts   PromptSource
	logger    *slog.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(completer Completer, prompts PromptSource, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{
		completer: completer,
		prompts:   prompts,
		logger:    logging.WithStage(logger, StageReview),
	}
}

// Review returns the reviewer's verdict. Anything other than a well-formed
// verdict from the model yields DecisionEscalate.
func (r *Reviewer) Review(ctx context.Context, question, contextStr, answer string) ReviewVerdict {
	tmpl, err := r.prompts.Template(TemplateReview)
	if err != nil {
		r.logger.Error("review template unavailable, defaulting to escalate", logging.Err(err))
		return ReviewVerdict{Decision: DecisionEscalate, Reason: reasonReviewTemplateMissing}
	}

	prompt := renderPrompt(tmpl, map[string]string{
		"question":       question,
		"context_str":    contextStr,
		"drafted_answer": answer,
	})

	raw, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		r.logger.Error("review model call failed, defaulting to escalate", logging.Err(err))
		return ReviewVerdict{Decision: DecisionEscalate, Reason: reasonReviewModelError + " " + err.Error()}
	}
	r.logger.Debug("review raw response", slog.String("raw", raw))

	decoded := DecodeReviewVerdict(raw)
	if !decoded.OK() {
		r.logger.Warn("review returned invalid JSON, defaulting to escalate", logging.Err(decoded.Err))
		return ReviewVerdict{Decision: DecisionEscalate, Reason: reasonReviewInvalidOutput}
	}

	r.logger.Info("review decision", logging.Decision(string(decoded.Value.Decision)),
		slog.String("reason", decoded.Value.Reason))
	return decoded.Value
}
