package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/workflow"
)

// SendReply sends reply in its thread. When reply.InReplyTo names the
// Gmail ID of the customer's message, its Message-ID and References headers
// are carried over so mail clients thread the answer. It implements
// workflow.Sender.
func (c *Client) SendReply(ctx context.Context, reply workflow.Reply) (string, error) {
	if reply.To == "" {
		return "", errors.New("recipient is required")
	}
	if reply.Body == "" {
		return "", errors.New("body is required")
	}

	var inReplyTo, references string
	if reply.InReplyTo != "" {
		orig, err := c.threadingHeaders(ctx, reply.InReplyTo)
		if err != nil {
			// Gmail still files the reply by ThreadId.
			c.logger.WarnContext(ctx, "failed to load threading headers", logging.Err(err))
		} else {
			inReplyTo, references = orig.MessageIDHeader, orig.References
		}
	}

	raw := BuildReply(reply, inReplyTo, references)

	var id string
	err := c.observe(ctx, instrumentation.OperationSend, func(ctx context.Context) error {
		sent, err := c.svc.Messages.Send(me, &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
			ThreadId: reply.ThreadID,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
		id = sent.Id
		return nil
	})
	return id, err
}

func (c *Client) threadingHeaders(ctx context.Context, messageID string) (Inbound, error) {
	var in Inbound
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		msg, err := c.svc.Messages.Get(me, messageID).
			Format("metadata").
			MetadataHeaders("Message-ID", "References").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		in.MessageIDHeader = HeaderValue(msg, "Message-ID")
		in.References = HeaderValue(msg, "References")
		return nil
	})
	return in, err
}

// BuildReply renders reply as an RFC 2822 plain-text message.
func BuildReply(reply workflow.Reply, inReplyTo, references string) string {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(formatAddress(reply.To))
	b.WriteString("\r\n")

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(sanitizeHeader(reply.Subject)))
	b.WriteString("\r\n")

	if inReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(sanitizeHeader(inReplyTo))
		b.WriteString("\r\n")

		refs := inReplyTo
		if references != "" {
			refs = references + " " + inReplyTo
		}
		b.WriteString("References: ")
		b.WriteString(sanitizeHeader(refs))
		b.WriteString("\r\n")
	}

	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(reply.Body, "\n", "\r\n"))
	return b.String()
}

// formatAddress re-renders a From header value so non-ASCII display names
// are encoded. Unparseable values are passed through with line breaks removed.
func formatAddress(s string) string {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return sanitizeHeader(s)
	}
	return addr.String()
}

// sanitizeHeader removes CR and LF so model or customer text cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// encodeRFC2047 encodes non-ASCII header text.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// BareAddress returns the address part of a From header value, or the
// trimmed value when it does not parse.
func BareAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}
