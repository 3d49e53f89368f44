package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/inboxreply/internal/logging"
)

// SendLedger prevents a redelivered request from sending the same reply
// twice. Claim returns false when key was already claimed.
type SendLedger interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher executes the terminal nodes: sending an approved reply or
// recording an escalation.
type Dispatcher struct {
	sender Sender
	sink   EscalationSink
	ledger SendLedger
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. ledger may be nil.
func NewDispatcher(sender Sender, sink EscalationSink, ledger SendLedger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		sink:   sink,
		ledger: ledger,
		logger: logger,
	}
}

// Dispatch routes on the final decision: send when approved, escalate otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, s *State) (Result, error) {
	if s.FinalDecision != nil && s.FinalDecision.Approved() {
		return d.Send(ctx, s)
	}
	return d.Escalate(ctx, s, EscalationSourceReview)
}

// ReplySubject prefixes subject with "Re: ". A subject that already starts
// with exactly "Re: " is kept so replies in a thread do not stack prefixes;
// any other spelling ("RE:", "re:") gets the prefix.
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, replyPrefix) {
		return subject
	}
	return replyPrefix + subject
}

const replyPrefix = "Re: "

// Send delivers the drafted answer to the original sender in the original
// thread. A failed send is escalated and reported with ErrSendFailed.
func (d *Dispatcher) Send(ctx context.Context, s *State) (Result, error) {
	logger := logging.WithStage(d.logger, StageSend)

	reply := Reply{
		To:        s.OriginalMessage.Sender,
		Subject:   ReplySubject(s.OriginalMessage.Subject),
		Body:      s.DraftedAnswer,
		ThreadID:  s.OriginalMessage.ThreadID,
		InReplyTo: s.OriginalMessage.MessageID,
	}

	ledgerKey := s.OriginalMessage.MessageID
	if d.ledger != nil && ledgerKey != "" {
		claimed, err := d.ledger.Claim(ctx, ledgerKey)
		if err != nil {
			return Result{}, fmt.Errorf("failed to claim send ledger: %w", err)
		}
		if !claimed {
			logger.Warn("reply already sent for message, skipping", logging.ThreadID(reply.ThreadID))
			return Result{Action: ActionSent, Reason: "reply already sent", Answer: reply.Body}, nil
		}
	}

	messageID, err := d.sender.SendReply(ctx, reply)
	if err != nil {
		logger.Error("failed to send reply", logging.ThreadID(reply.ThreadID), logging.Err(err))
		if d.ledger != nil && ledgerKey != "" {
			if relErr := d.ledger.Release(context.WithoutCancel(ctx), ledgerKey); relErr != nil {
				logger.Warn("failed to release send ledger", logging.Err(relErr))
			}
		}

		sendErr := fmt.Errorf("%w: %v", ErrSendFailed, err)
		res, escErr := d.escalate(ctx, s, EscalationSourceSend, "send failed: "+err.Error())
		if escErr != nil {
			return Result{}, errors.Join(sendErr, escErr)
		}
		return res, sendErr
	}

	logger.Info("reply sent", logging.ThreadID(reply.ThreadID), logging.UserHash(reply.To))
	return Result{Action: ActionSent, Answer: reply.Body, MessageID: messageID}, nil
}

// Escalate records an escalation carrying the reason of whichever check fired.
func (d *Dispatcher) Escalate(ctx context.Context, s *State, source string) (Result, error) {
	return d.escalate(ctx, s, source, s.escalationReason())
}

func (d *Dispatcher) escalate(ctx context.Context, s *State, source, reason string) (Result, error) {
	logger := logging.WithStage(d.logger, StageEscalate)

	e := Escalation{
		RunID:    s.RunID,
		ThreadID: s.OriginalMessage.ThreadID,
		Sender:   s.OriginalMessage.Sender,
		Subject:  s.OriginalMessage.Subject,
		Question: s.Question,
		Draft:    s.DraftedAnswer,
		Reason:   reason,
		Source:   source,
	}
	if err := d.sink.Escalate(ctx, e); err != nil {
		return Result{}, fmt.Errorf("failed to record escalation: %w", err)
	}

	logger.Info("escalated to human",
		logging.ThreadID(e.ThreadID),
		slog.String("source", source),
		slog.String("reason", reason))
	return Result{Action: ActionEscalated, Reason: reason, Answer: s.DraftedAnswer}, nil
}

// LogEscalationSink writes escalations to the log only.
type LogEscalationSink struct {
	logger *slog.Logger
}

// NewLogEscalationSink creates a LogEscalationSink.
func NewLogEscalationSink(logger *slog.Logger) *LogEscalationSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEscalationSink{logger: logger}
}

// Escalate logs e.
func (l *LogEscalationSink) Escalate(_ context.Context, e Escalation) error {
	l.logger.Warn("escalation recorded",
		slog.String("run_id", e.RunID),
		logging.ThreadID(e.ThreadID),
		logging.UserHash(e.Sender),
		slog.String("source", e.Source),
		slog.String("reason", e.Reason))
	return nil
}

// LogSender logs replies instead of sending them. Used for dry runs.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendReply logs reply and returns a synthetic message ID.
func (l *LogSender) SendReply(_ context.Context, reply Reply) (string, error) {
	l.logger.Info("dry run: reply not sent",
		logging.ThreadID(reply.ThreadID),
		slog.String("subject", reply.Subject),
		slog.Int("body_length", len(reply.Body)))
	return "dry-run", nil
}
