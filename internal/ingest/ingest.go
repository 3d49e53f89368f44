package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/teemow/inboxreply/internal/gmail"
	"github.com/teemow/inboxreply/internal/history"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/queue"
	"github.com/teemow/inboxreply/internal/workflow"
)

// MaxQuestionRunes bounds the question handed to the workflow.
const MaxQuestionRunes = 8000

// Mailbox is the part of the Gmail client an ingest pass needs.
type Mailbox interface {
	UnreadMessages(ctx context.Context, query string, limit int64) ([]string, error)
	FetchInbound(ctx context.Context, messageID string) (gmail.Inbound, error)
	MarkRead(ctx context.Context, messageID string) error
}

// HistoryWriter stores inbound messages. history.Store satisfies it.
type HistoryWriter interface {
	SaveMessage(ctx context.Context, threadID, userEmail, role, content, externalID string) (bool, error)
}

// Enqueuer queues workflow requests. queue.JobQueue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req workflow.Request) (queue.Job, error)
}

// Options configure an Ingestor.
type Options struct {
	// Query selects the messages to ingest.
	Query string
	// MaxMessages bounds one pass.
	MaxMessages int64
	// Self is the service mailbox address. Messages from it are skipped.
	Self string
}

// Stats summarizes one pass.
type Stats struct {
	Listed   int `json:"listed"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Ingestor runs ingest passes. Concurrent calls to Ingest are serialized.
type Ingestor struct {
	mailbox Mailbox
	history HistoryWriter
	queue   Enqueuer
	opts    Options
	logger  *slog.Logger

	mu sync.Mutex
}

// New creates an Ingestor.
func New(mailbox Mailbox, hist HistoryWriter, q Enqueuer, opts Options, logger *slog.Logger) *Ingestor {
	if opts.Query == "" {
		opts.Query = "is:unread in:inbox"
	}
	if opts.MaxMessages < 1 {
		opts.MaxMessages = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		mailbox: mailbox,
		history: hist,
		queue:   q,
		opts:    opts,
		logger:  logging.WithOperation(logger, "ingest"),
	}
}

// Ingest runs one pass. A failure on one message is logged and counted and
// does not stop the pass; the message stays unread and is retried next time.
// The returned error is non-nil only when listing fails or ctx ends.
func (in *Ingestor) Ingest(ctx context.Context) (Stats, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var stats Stats
	ids, err := in.mailbox.UnreadMessages(ctx, in.opts.Query, in.opts.MaxMessages)
	if err != nil {
		return stats, fmt.Errorf("failed to list unread messages: %w", err)
	}
	stats.Listed = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		enqueued, err := in.ingestOne(ctx, id)
		switch {
		case err != nil:
			stats.Failed++
			in.logger.ErrorContext(ctx, "failed to ingest message", slog.String("message_id", id), logging.Err(err))
		case enqueued:
			stats.Enqueued++
		default:
			stats.Skipped++
		}
	}

	in.logger.InfoContext(ctx, "ingest pass finished",
		slog.Int("listed", stats.Listed),
		slog.Int("enqueued", stats.Enqueued),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, id string) (bool, error) {
	msg, err := in.mailbox.FetchInbound(ctx, id)
	if err != nil && !errors.Is(err, gmail.ErrNoBody) {
		return false, err
	}

	sender := gmail.BareAddress(msg.From)
	if sender == "" || in.isSelf(sender) {
		in.logger.DebugContext(ctx, "skipping message", slog.String("message_id", id), logging.UserHash(sender))
		return false, in.mailbox.MarkRead(ctx, id)
	}

	question := Question(msg.Body, msg.Subject)
	if question == "" {
		in.logger.WarnContext(ctx, "skipping empty message", slog.String("message_id", id))
		return false, in.mailbox.MarkRead(ctx, id)
	}

	req := workflow.Request{
		Question: question,
		OriginalMessage: workflow.OriginalMessage{
			MessageID: msg.ID,
			ThreadID:  msg.ThreadID,
			Sender:    msg.From,
			Subject:   msg.Subject,
		},
	}
	job, err := in.queue.Enqueue(ctx, req)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue: %w", err)
	}

	if _, err := in.history.SaveMessage(ctx, msg.ThreadID, sender, history.RoleUser, question, msg.ID); err != nil {
		return false, fmt.Errorf("failed to save message: %w", err)
	}
	if err := in.mailbox.MarkRead(ctx, id); err != nil {
		return false, err
	}

	in.logger.InfoContext(ctx, "message enqueued",
		logging.Job(job.ID),
		logging.ThreadID(msg.ThreadID),
		logging.UserHash(sender))
	return true, nil
}

func (in *Ingestor) isSelf(addr string) bool {
	return in.opts.Self != "" && strings.EqualFold(addr, in.opts.Self)
}

// Question picks the text to answer: the body, or the subject when the body
// is blank, cut to MaxQuestionRunes.
func Question(body, subject string) string {
	q := strings.TrimSpace(body)
	if q == "" {
		q = strings.TrimSpace(subject)
	}
	if utf8.RuneCountInString(q) <= MaxQuestionRunes {
		return q
	}
	return string([]rune(q)[:MaxQuestionRunes])
}
