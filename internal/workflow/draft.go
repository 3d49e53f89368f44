package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/inboxreply/internal/logging"
)

// DefaultFirstName is used when no name can be derived from the sender.
const DefaultFirstName = "User"

// Fixed composer output used when the draft template is unavailable, so the
// reviewer still receives well-typed fields.
const (
	fallbackDraftContext = "System Error: Prompt file not found."
	fallbackDraftAnswer  = "I was unable to find a definitive answer due to a system error."
)

// Retrieval bounds.
const (
	DefaultTopK = 3
	MaxTopK     = 10
)

// Composer retrieves supporting passages and drafts an answer.
type Composer struct {
	completer Completer
	retriever Retriever
	prompts   PromptSource
	topK      int
	logger    *slog.Logger
}

// NewComposer creates a Composer. topK is clamped to [1, MaxTopK]; zero
// selects DefaultTopK.
func NewComposer(completer Completer, retriever Retriever, prompts PromptSource, topK int, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case topK == 0:
		topK = DefaultTopK
	case topK < 1:
		topK = 1
	case topK > MaxTopK:
		topK = MaxTopK
	}
	return &Composer{
		completer: completer,
		retriever: retriever,
		prompts:   prompts,
		topK:      topK,
		logger:    logging.WithStage(logger, StageDraft),
	}
}

// Compose drafts an answer to question, personalised for sender.
// chatHistory may be empty.
func (c *Composer) Compose(ctx context.Context, question, sender, chatHistory string) (Draft, error) {
	tmpl, err := c.prompts.Template(TemplateDraft)
	if err != nil {
		c.logger.Error("draft template unavailable", logging.Err(err))
		return Draft{Context: fallbackDraftContext, Answer: fallbackDraftAnswer}, nil
	}

	passages, err := c.retriever.Retrieve(ctx, question, c.topK)
	if err != nil {
		return Draft{}, fmt.Errorf("failed to retrieve knowledge: %w", err)
	}
	contextStr := JoinPassages(passages)
	c.logger.Debug("retrieved context", slog.Int("passages", len(passages)))

	if strings.TrimSpace(chatHistory) == "" {
		chatHistory = "(none)"
	}

	prompt := renderPrompt(tmpl, map[string]string{
		"context_str":  contextStr,
		"question":     question,
		"first_name":   FirstName(sender),
		"chat_history": chatHistory,
	})

	answer, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return Draft{}, fmt.Errorf("failed to draft answer: %w", err)
	}

	return Draft{Context: contextStr, Answer: answer}, nil
}

// JoinPassages concatenates passage texts separated by a blank line.
func JoinPassages(passages []Passage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n")
}

// FirstName derives a greeting name from a From header value.
//
//	FirstName(`"John Doe" <j@x.com>`)  // "John"
//	FirstName("jane.doe@example.com")  // "jane"
//	FirstName("<j@x.com>")             // "User"
func FirstName(sender string) string {
	if i := strings.Index(sender, "<"); i >= 0 {
		name := strings.TrimSpace(strings.Trim(strings.TrimSpace(sender[:i]), `"'`))
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return DefaultFirstName
		}
		return fields[0]
	}

	local := sender
	if i := strings.Index(local, "@"); i >= 0 {
		local = local[:i]
	}
	if i := strings.Index(local, "."); i >= 0 {
		local = local[:i]
	}
	local = strings.TrimSpace(local)
	if local == "" {
		return DefaultFirstName
	}
	return local
}
