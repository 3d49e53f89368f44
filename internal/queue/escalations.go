package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxreply/internal/workflow"
)

const KeyEscalations = "inboxreply:escalations"

// DefaultEscalationCap bounds the escalation list; older entries are trimmed.
const DefaultEscalationCap = 10000

// EscalationRecord is an escalation as stored for operators.
type EscalationRecord struct {
	workflow.Escalation
	CreatedAt time.Time `json:"created_at"`
}

// EscalationSink pushes escalations onto a capped Redis list. It implements
// workflow.EscalationSink.
type EscalationSink struct {
	rdb redis.Cmdable
	cap int64
	now func() time.Time
}

// NewEscalationSink creates an EscalationSink with DefaultEscalationCap.
func NewEscalationSink(rdb redis.Cmdable) *EscalationSink {
	return &EscalationSink{rdb: rdb, cap: DefaultEscalationCap, now: time.Now}
}

// Escalate stores e at the head of the list.
func (s *EscalationSink) Escalate(ctx context.Context, e workflow.Escalation) error {
	data, err := json.Marshal(EscalationRecord{Escalation: e, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode escalation: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, KeyEscalations, data)
		pipe.LTrim(ctx, KeyEscalations, 0, s.cap-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store escalation: %w", err)
	}
	return nil
}

// List returns up to limit escalations, newest first. Entries that do not
// decode are skipped.
func (s *EscalationSink) List(ctx context.Context, limit int64) ([]EscalationRecord, error) {
	if limit < 1 {
		return nil, nil
	}
	raw, err := s.rdb.LRange(ctx, KeyEscalations, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}

	out := make([]EscalationRecord, 0, len(raw))
	for _, r := range raw {
		var rec EscalationRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored escalations.
func (s *EscalationSink) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, KeyEscalations).Result()
}
