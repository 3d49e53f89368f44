package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

// Default timeouts for a run and for each stage within it.
const (
	DefaultStageTimeout = 60 * time.Second
	DefaultRunTimeout   = 3 * time.Minute
)

// Route labels used by the conditional edges.
const (
	routeContinue = "continue"
	routeEscalate = "escalate"
	routeSend     = "send_email"
)

// Recorder receives run and stage measurements. instrumentation.Metrics
// satisfies it.
type Recorder interface {
	RecordWorkflowStage(ctx context.Context, stage, status string, duration time.Duration)
	RecordWorkflowRun(ctx context.Context, action, status string, duration time.Duration)
	RecordEscalation(ctx context.Context, source, senderDomain string)
}

// Dependencies are the collaborators injected into the pipeline.
type Dependencies struct {
	Completer  Completer
	Retriever  Retriever
	Sender     Sender
	Escalation EscalationSink
	// Ledger is optional.
	Ledger  SendLedger
	Prompts PromptSource
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics Recorder
	// Audit is optional.
	Audit *instrumentation.AuditLogger
}

// Options tune a pipeline.
type Options struct {
	TopK         int
	StageTimeout time.Duration
	RunTimeout   time.Duration
}

// Orchestrator runs requests through the compiled graph. It is safe for
// concurrent use; every Run gets its own State.
type Orchestrator struct {
	guard      *Guard
	composer   *Composer
	reviewer   *Reviewer
	dispatcher *Dispatcher
	graph      *graph
	opts       Options
	logger     *slog.Logger
	metrics    Recorder
	audit      *instrumentation.AuditLogger
}

// NewOrchestrator wires the stages and compiles the graph.
func NewOrchestrator(deps Dependencies, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Completer == nil:
		return nil, errors.New("completer is required")
	case deps.Retriever == nil:
		return nil, errors.New("retriever is required")
	case deps.Sender == nil:
		return nil, errors.New("sender is required")
	case deps.Escalation == nil:
		return nil, errors.New("escalation sink is required")
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptSource("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}

	o := &Orchestrator{
		guard:      NewGuard(deps.Completer, deps.Prompts, deps.Logger),
		composer:   NewComposer(deps.Completer, deps.Retriever, deps.Prompts, opts.TopK, deps.Logger),
		reviewer:   NewReviewer(deps.Completer, deps.Prompts, deps.Logger),
		dispatcher: NewDispatcher(deps.Sender, deps.Escalation, deps.Ledger, deps.Logger),
		opts:       opts,
		logger:     logging.WithOperation(deps.Logger, "workflow.run"),
		metrics:    deps.Metrics,
		audit:      deps.Audit,
	}

	g, err := o.buildGraph()
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow graph: %w", err)
	}
	o.graph = g
	return o, nil
}

func (o *Orchestrator) buildGraph() (*graph, error) {
	g := newGraph()

	g.addNode(StageGuard, func(ctx context.Context, s *State) error {
		return s.setSafety(o.guard.Evaluate(ctx, s.Question))
	})
	g.addNode(StageDraft, func(ctx context.Context, s *State) error {
		d, err := o.composer.Compose(ctx, s.Question, s.OriginalMessage.Sender, s.ChatHistory)
		if err != nil {
			return err
		}
		return s.setDraft(d)
	})
	g.addNode(StageReview, func(ctx context.Context, s *State) error {
		return s.setFinal(o.reviewer.Review(ctx, s.Question, s.Context, s.DraftedAnswer))
	})
	g.addNode(StageSend, func(ctx context.Context, s *State) error {
		res, err := o.dispatcher.Send(ctx, s)
		if res.Action == ActionEscalated {
			o.recordEscalation(ctx, s, EscalationSourceSend)
		}
		if res.Action != "" {
			if setErr := s.setResult(res); setErr != nil {
				return setErr
			}
		}
		return err
	})
	g.addNode(StageEscalate, func(ctx context.Context, s *State) error {
		source := EscalationSourceReview
		if s.SafetyDecision != nil && !s.SafetyDecision.IsSafe {
			source = EscalationSourceGuard
		}
		res, err := o.dispatcher.Escalate(ctx, s, source)
		if err != nil {
			return err
		}
		o.recordEscalation(ctx, s, source)
		return s.setResult(res)
	})

	g.setEntry(StageGuard)
	g.addConditionalEdges(StageGuard, routeAfterGuard, map[string]string{
		routeContinue: StageDraft,
		routeEscalate: StageEscalate,
	})
	g.addEdge(StageDraft, StageReview)
	g.addConditionalEdges(StageReview, routeAfterReview, map[string]string{
		routeSend:     StageSend,
		routeEscalate: StageEscalate,
	})
	g.addEdge(StageSend, End)
	g.addEdge(StageEscalate, End)

	if err := g.compile(); err != nil {
		return nil, err
	}
	return g, nil
}

func routeAfterGuard(s *State) string {
	if s.SafetyDecision != nil && s.SafetyDecision.IsSafe {
		return routeContinue
	}
	return routeEscalate
}

func routeAfterReview(s *State) string {
	if s.FinalDecision != nil && s.FinalDecision.Approved() {
		return routeSend
	}
	return routeEscalate
}

// Run processes one request to a terminal outcome.
//
// Invalid requests are rejected with ErrInvalidRequest before any stage runs.
// Collaborator failures return ErrRunFailed and no result. A failed send
// returns the escalated result together with ErrSendFailed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	s := newState(runID, req)
	logger := o.logger.With(slog.String("run_id", runID), logging.ThreadID(req.OriginalMessage.ThreadID))

	ctx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	ctx, span := instrumentation.StartWorkflowSpan(ctx, runID, req.OriginalMessage.ThreadID)
	defer span.End()

	record := instrumentation.NewRunRecord(runID).
		WithMessage(req.OriginalMessage.ThreadID, req.OriginalMessage.Sender, req.OriginalMessage.Subject, req.Question).
		WithSpanContext(ctx)
	start := time.Now()
	logger.Info("workflow started")

	stage, err := o.graph.run(ctx, s, o.stageHook(logger))

	var result Result
	if s.result != nil {
		result = *s.result
	}
	o.audit.LogRun(context.WithoutCancel(ctx), record.Complete(string(result.Action), result.Reason, err))

	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, ErrSendFailed) && s.result != nil:
		instrumentation.SetSpanError(span, err)
	default:
		instrumentation.SetSpanError(span, err)
		o.recordRun(ctx, "", instrumentation.StatusError, time.Since(start))
		logger.Error("workflow failed", logging.Stage(stage), logging.Err(err))
		return Result{RunID: runID}, fmt.Errorf("%w at %s: %w", ErrRunFailed, stage, err)
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	o.recordRun(ctx, string(result.Action), status, time.Since(start))
	logger.Info("workflow finished",
		slog.String("action", string(result.Action)),
		slog.String("reason", result.Reason),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return result, err
}

func (o *Orchestrator) stageHook(logger *slog.Logger) stageHook {
	return func(ctx context.Context, stage string, run func(ctx context.Context) error) error {
		ctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()

		ctx, span := instrumentation.StartStageSpan(ctx, stage)
		defer span.End()

		logger.Debug("stage started", logging.Stage(stage))
		start := time.Now()
		err := run(ctx)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		if o.metrics != nil {
			o.metrics.RecordWorkflowStage(ctx, stage, status, duration)
		}
		return err
	}
}

func (o *Orchestrator) recordEscalation(ctx context.Context, s *State, source string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordEscalation(ctx, source, instrumentation.ExtractUserDomain(s.OriginalMessage.Sender))
}

func (o *Orchestrator) recordRun(ctx context.Context, action, status string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordWorkflowRun(context.WithoutCancel(ctx), action, status, d)
}
