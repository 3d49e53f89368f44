package gmail

import (
	"context"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxreply/internal/instrumentation"
)

// WatchResult describes an active push watch.
type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time
}

// Watch asks Gmail to publish mailbox changes on labels to a Pub/Sub topic
// (projects/<project>/topics/<topic>). Watches expire after seven days and
// must be renewed.
func (c *Client) Watch(ctx context.Context, topic string, labels []string) (WatchResult, error) {
	var res WatchResult
	err := c.observe(ctx, instrumentation.OperationWatch, func(ctx context.Context) error {
		resp, err := c.svc.Watch(me, &gmail.WatchRequest{
			TopicName: topic,
			LabelIds:  labels,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to start watch: %w", err)
		}
		res.HistoryID = resp.HistoryId
		res.Expiration = time.UnixMilli(resp.Expiration)
		return nil
	})
	return res, err
}

// StopWatch cancels push notifications for the mailbox.
func (c *Client) StopWatch(ctx context.Context) error {
	return c.observe(ctx, instrumentation.OperationWatch, func(ctx context.Context) error {
		if err := c.svc.Stop(me).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to stop watch: %w", err)
		}
		return nil
	})
}
