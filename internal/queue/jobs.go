package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/workflow"
)

const (
	KeyJobs     = "inboxreply:jobs"
	KeyDeadJobs = "inboxreply:jobs:dead"
)

// DefaultMaxAttempts is used when JobQueue is given a non-positive limit.
const DefaultMaxAttempts = 3

// ErrMalformedJob is returned by Dequeue for a payload that is not a Job.
// The payload has already been moved to the dead list.
var ErrMalformedJob = errors.New("malformed job payload")

// Job is one queued workflow request.
type Job struct {
	ID         string           `json:"id"`
	Request    workflow.Request `json:"request"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
}

// JobQueue is a FIFO of Jobs in a Redis list.
type JobQueue struct {
	rdb         redis.Cmdable
	maxAttempts int
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// NewJobQueue creates a JobQueue. metrics and logger may be nil.
func NewJobQueue(rdb redis.Cmdable, maxAttempts int, metrics *instrumentation.Metrics, logger *slog.Logger) *JobQueue {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		rdb:         rdb,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logging.WithOperation(logger, "queue"),
	}
}

// Enqueue validates req and appends it as a new Job.
func (q *JobQueue) Enqueue(ctx context.Context, req workflow.Request) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, err
	}

	job := Job{
		ID:         uuid.NewString(),
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(ctx, KeyJobs, job); err != nil {
		return Job{}, err
	}

	q.metrics.RecordQueueJob(ctx, instrumentation.QueueEnqueued)
	q.logger.DebugContext(ctx, "job enqueued", logging.Job(job.ID), logging.ThreadID(req.OriginalMessage.ThreadID))
	return job, nil
}

// Dequeue blocks up to timeout for the oldest Job. It returns (nil, nil)
// when the timeout elapses with the queue empty.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, KeyJobs).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	// BRPOP replies with [key, value].
	payload := res[1]
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil || job.ID == "" {
		if dlErr := q.rdb.LPush(ctx, KeyDeadJobs, payload).Err(); dlErr != nil {
			q.logger.ErrorContext(ctx, "failed to dead-letter malformed job", logging.Err(dlErr))
		}
		q.metrics.RecordQueueJob(ctx, instrumentation.QueueDead)
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return &job, nil
}

// Done records that job finished, whatever the workflow decided.
func (q *JobQueue) Done(ctx context.Context, job *Job) {
	q.metrics.RecordQueueJob(ctx, instrumentation.QueueProcessed)
	q.logger.DebugContext(ctx, "job processed", logging.Job(job.ID))
}

// Retry requeues a failed job at the back of the queue, or moves it to the
// dead list once it has used all its attempts. dead reports which happened.
func (q *JobQueue) Retry(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}

	key, outcome := KeyJobs, instrumentation.QueueRetried
	if job.Attempts >= q.maxAttempts {
		key, outcome, dead = KeyDeadJobs, instrumentation.QueueDead, true
	}
	if err := q.push(ctx, key, *job); err != nil {
		return dead, err
	}

	q.metrics.RecordQueueJob(ctx, outcome)
	q.logger.WarnContext(ctx, "job failed",
		logging.Job(job.ID),
		slog.Int("attempts", job.Attempts),
		slog.Bool("dead", dead),
		logging.Err(cause))
	return dead, nil
}

// Requeue puts an interrupted job back at the head of the queue without
// counting an attempt, so the next worker picks it up first.
func (q *JobQueue) Requeue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.RPush(ctx, KeyJobs, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to %s: %w", KeyJobs, err)
	}

	q.metrics.RecordQueueJob(ctx, instrumentation.QueueRequeued)
	q.logger.InfoContext(ctx, "job requeued after interruption",
		logging.Job(job.ID),
		slog.Int("attempts", job.Attempts))
	return nil
}

// Len returns the number of waiting jobs.
func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, KeyJobs).Result()
}

// DeadLen returns the number of dead-lettered jobs.
func (q *JobQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, KeyDeadJobs).Result()
}

// DeadJobs returns up to limit dead-lettered payloads, newest first.
func (q *JobQueue) DeadJobs(ctx context.Context, limit int64) ([]string, error) {
	if limit < 1 {
		return nil, nil
	}
	return q.rdb.LRange(ctx, KeyDeadJobs, 0, limit-1).Result()
}

// Ping checks the Redis connection.
func (q *JobQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *JobQueue) push(ctx context.Context, key string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to %s: %w", key, err)
	}
	return nil
}
