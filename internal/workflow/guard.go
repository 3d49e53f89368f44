package workflow

import (
	"context"
	"log/slog"

	"github.com/teemow/inboxreply/internal/logging"
)

// Reasons reported by the guard when it cannot classify a question.
const (
	reasonGuardTemplateMissing = "System Error: Guardrail prompt file not found."
	reasonGuardInvalidOutput   = "Invalid format from guardrail model."
	reasonGuardModelError      = "Guardrail model call failed."
)

// Guard is the safety gate in front of the pipeline.
type Guard struct {
	completer Completer
	prompts   PromptSource
	logger    *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(completer Completer, prompts PromptSource, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		completer: completer,
		prompts:   prompts,
		logger:    logging.WithStage(logger, StageGuard),
	}
}

// Evaluate classifies question. It never returns a safe verdict unless the
// model produced a well-formed one saying so.
func (g *Guard) Evaluate(ctx context.Context, question string) SafetyVerdict {
	tmpl, err := g.prompts.Template(TemplateGuard)
	if err != nil {
		g.logger.Error("guard template unavailable, defaulting to not safe", logging.Err(err))
		return SafetyVerdict{IsSafe: false, Reason: reasonGuardTemplateMissing}
	}

	prompt := renderPrompt(tmpl, map[string]string{"question": question})

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.logger.Error("guard model call failed, defaulting to not safe", logging.Err(err))
		return SafetyVerdict{IsSafe: false, Reason: reasonGuardModelError + " " + err.Error()}
	}
	g.logger.Debug("guard raw response", slog.String("raw", raw))

	decoded := DecodeSafetyVerdict(raw)
	if !decoded.OK() {
		g.logger.Warn("guard returned invalid JSON, defaulting to not safe", logging.Err(decoded.Err))
		return SafetyVerdict{IsSafe: false, Reason: reasonGuardInvalidOutput}
	}

	g.logger.Info("guard decision",
		slog.Bool("is_safe", decoded.Value.IsSafe),
		slog.String("reason", decoded.Value.Reason))
	return decoded.Value
}
