package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

const me = "me"

// maxPageSize is the largest page the Gmail list endpoints accept.
const maxPageSize = 100

// Client wraps the Gmail Users service of the service mailbox.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewClient creates a Gmail client on an authenticated HTTP client. Extra
// options (for example option.WithEndpoint) are passed to the Gmail service.
func NewClient(ctx context.Context, hc *http.Client, metrics *instrumentation.Metrics, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(hc)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:     svc.Users,
		metrics: metrics,
		logger:  logging.WithOperation(logger, "gmail"),
	}, nil
}

// observe runs one Gmail API call inside a span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation)
	defer span.End()

	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// Address returns the mailbox's own email address.
func (c *Client) Address(ctx context.Context) (string, error) {
	var addr string
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		p, err := c.svc.GetProfile(me).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", err)
		}
		addr = p.EmailAddress
		return nil
	})
	return addr, err
}

// UnreadMessages returns the IDs of up to limit messages matching query,
// newest first, following pagination as needed.
func (c *Client) UnreadMessages(ctx context.Context, query string, limit int64) ([]string, error) {
	var ids []string
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		pageToken := ""
		for {
			remaining := limit - int64(len(ids))
			if remaining <= 0 {
				return nil
			}

			req := c.svc.Messages.List(me).Q(query).MaxResults(min(remaining, maxPageSize)).Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			res, err := req.Do()
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", err)
			}
			for _, m := range res.Messages {
				ids = append(ids, m.Id)
			}

			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
	})
	if int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, err
}

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		return nil
	})
	return msg, err
}

// FetchInbound retrieves and parses a customer message.
func (c *Client) FetchInbound(ctx context.Context, messageID string) (Inbound, error) {
	msg, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return Inbound{}, err
	}
	return ParseMessage(msg)
}

// MarkRead removes the UNREAD label so the message is not ingested again.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.observe(ctx, instrumentation.OperationModify, func(ctx context.Context) error {
		_, err := c.svc.Messages.Modify(me, messageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to mark message %s read: %w", messageID, err)
		}
		return nil
	})
}
