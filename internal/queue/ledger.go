package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxreply/internal/instrumentation"
)

const ledgerPrefix = "inboxreply:sent:"

// DefaultSentTTL is how long a claim is remembered.
const DefaultSentTTL = 30 * 24 * time.Hour

// SentLedger records which source messages have been answered. It
// implements workflow.SendLedger.
type SentLedger struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *instrumentation.Metrics
}

// NewSentLedger creates a SentLedger. metrics may be nil.
func NewSentLedger(rdb redis.Cmdable, ttl time.Duration, metrics *instrumentation.Metrics) *SentLedger {
	if ttl <= 0 {
		ttl = DefaultSentTTL
	}
	return &SentLedger{rdb: rdb, ttl: ttl, metrics: metrics}
}

// Claim atomically marks messageID as answered. It returns false when
// another run already claimed it.
func (l *SentLedger) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, ledgerPrefix+messageID, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", messageID, err)
	}
	if !ok {
		l.metrics.RecordQueueJob(ctx, instrumentation.QueueDuplicate)
	}
	return ok, nil
}

// Release forgets a claim so a later attempt may send.
func (l *SentLedger) Release(ctx context.Context, messageID string) error {
	if err := l.rdb.Del(ctx, ledgerPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", messageID, err)
	}
	return nil
}

// Claimed reports whether messageID has an active claim.
func (l *SentLedger) Claimed(ctx context.Context, messageID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, ledgerPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
