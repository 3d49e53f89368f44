package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxreply/internal/gmail"
	"github.com/teemow/inboxreply/internal/history"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/queue"
	"github.com/teemow/inboxreply/internal/workflow"
)

// Defaults for Options.
const (
	DefaultConcurrency = 4
	DefaultPopTimeout  = 5 * time.Second
	// DefaultErrorPause is how long a worker waits after a queue error.
	DefaultErrorPause = time.Second
)

// Queue is the job source. queue.JobQueue satisfies it.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Done(ctx context.Context, job *queue.Job)
	Retry(ctx context.Context, job *queue.Job, cause error) (bool, error)
	Requeue(ctx context.Context, job *queue.Job) error
}

// Runner runs one workflow request. workflow.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Result, error)
}

// History is the conversation store. history.Store satisfies it.
type History interface {
	History(ctx context.Context, threadID, except string) (string, error)
	SaveMessage(ctx context.Context, threadID, userEmail, role, content, externalID string) (bool, error)
	SetStatus(ctx context.Context, threadID, status string) error
}

// Options configure a Pool.
type Options struct {
	Concurrency int
	PopTimeout  time.Duration
	ErrorPause  time.Duration
}

// Pool processes queued jobs concurrently.
type Pool struct {
	queue   Queue
	runner  Runner
	history History
	opts    Options
	logger  *slog.Logger
}

// NewPool creates a Pool.
func NewPool(q Queue, runner Runner, hist History, opts Options, logger *slog.Logger) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = DefaultPopTimeout
	}
	if opts.ErrorPause <= 0 {
		opts.ErrorPause = DefaultErrorPause
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   q,
		runner:  runner,
		history: hist,
		opts:    opts,
		logger:  logging.WithOperation(logger, "worker"),
	}
}

// Run blocks until ctx is cancelled and every worker has finished its
// current job. It returns nil on a clean shutdown.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool started", slog.Int("concurrency", p.opts.Concurrency))

	g, ctx := errgroup.WithContext(ctx)
	for i := range p.opts.Concurrency {
		g.Go(func() error {
			return p.loop(ctx, p.logger.With(slog.Int("worker", i)))
		})
	}
	err := g.Wait()

	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := p.queue.Dequeue(ctx, p.opts.PopTimeout)
		switch {
		case ctx.Err() != nil:
			// A popped job is pushed back so shutdown loses nothing.
			if job != nil {
				p.pushBack(job, logger)
			}
			return nil
		case errors.Is(err, queue.ErrMalformedJob):
			logger.ErrorContext(ctx, "dropped malformed job", logging.Err(err))
			continue
		case err != nil:
			logger.ErrorContext(ctx, "failed to dequeue", logging.Err(err))
			if !sleep(ctx, p.opts.ErrorPause) {
				return nil
			}
			continue
		case job == nil:
			continue
		}

		p.Process(ctx, job)
	}
}

// Process runs one job to completion and settles it in the queue.
func (p *Pool) Process(ctx context.Context, job *queue.Job) {
	req := job.Request
	ctx, span := instrumentation.StartJobSpan(ctx, job.ID, req.OriginalMessage.ThreadID, job.Attempts)
	defer span.End()
	logger := p.logger.With(logging.Job(job.ID), logging.ThreadID(req.OriginalMessage.ThreadID))
	if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	chat, err := p.history.History(ctx, req.OriginalMessage.ThreadID, req.OriginalMessage.MessageID)
	if err != nil {
		p.settleFailure(ctx, job, fmt.Errorf("failed to load history: %w", err), logger)
		return
	}
	req.ChatHistory = chat

	result, err := p.runner.Run(ctx, req)

	// Bookkeeping for a finished run must survive shutdown.
	bg := context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, workflow.ErrInvalidRequest):
		logger.ErrorContext(ctx, "dropping invalid job", logging.Err(err))
		p.queue.Done(bg, job)
		return
	case err != nil && result.Action == "":
		p.settleFailure(ctx, job, err, logger)
		return
	case err != nil:
		logger.WarnContext(ctx, "run escalated after send failure", logging.Err(err))
	}

	p.record(bg, req, result, logger)
	p.queue.Done(bg, job)
}

// record stores the outcome of a finished run. Failures are logged only: the
// reply has already gone out or the escalation has been filed.
func (p *Pool) record(ctx context.Context, req workflow.Request, result workflow.Result, logger *slog.Logger) {
	thread := req.OriginalMessage.ThreadID

	status := history.StatusEscalated
	if result.Action == workflow.ActionSent {
		status = history.StatusAnswered
		// An empty MessageID marks a redelivered job whose reply was already recorded.
		if result.MessageID != "" {
			sender := gmail.BareAddress(req.OriginalMessage.Sender)
			if _, err := p.history.SaveMessage(ctx, thread, sender, history.RoleAgent, result.Answer, result.MessageID); err != nil {
				logger.ErrorContext(ctx, "failed to save agent reply", logging.Err(err))
			}
		}
	}
	if err := p.history.SetStatus(ctx, thread, status); err != nil {
		logger.ErrorContext(ctx, "failed to update conversation status", logging.Err(err))
	}
}

// settleFailure retries a failed job. A run cut short by shutdown is not the
// job's fault and is pushed back without using up an attempt.
func (p *Pool) settleFailure(ctx context.Context, job *queue.Job, cause error, logger *slog.Logger) {
	if ctx.Err() != nil {
		p.pushBack(job, logger)
		return
	}
	p.requeue(job, cause, logger)
}

func (p *Pool) pushBack(job *queue.Job, logger *slog.Logger) {
	if err := p.queue.Requeue(context.Background(), job); err != nil {
		logger.Error("failed to push back interrupted job", logging.Err(err))
	}
}

func (p *Pool) requeue(job *queue.Job, cause error, logger *slog.Logger) {
	if _, err := p.queue.Retry(context.Background(), job, cause); err != nil {
		logger.Error("failed to requeue job", logging.Err(err), slog.String("cause", cause.Error()))
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
