package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

const (
	DefaultModel      = "gemini-2.5-flash"
	DefaultEmbedModel = "gemini-embedding-001"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// generator is the subset of *genai.Models used for completions.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// embedder is the subset of *genai.Models used for embeddings.
type embedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	Model      string
	EmbedModel string
	// Dimensions requests a reduced embedding size. Zero keeps the model default.
	Dimensions int
	// RequestsPerSecond is shared by completions and embeddings. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Retry             RetryPolicy
}

// Client calls Gemini for completions and embeddings.
type Client struct {
	gen     generator
	emb     embedder
	opts    Options
	limiter *rate.Limiter
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewClient creates a Gemini API client. metrics and logger may be nil.
func NewClient(ctx context.Context, opts Options, metrics *instrumentation.Metrics, logger *slog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newClient(gc.Models, gc.Models, opts, metrics, logger), nil
}

func newClient(gen generator, emb embedder, opts Options, metrics *instrumentation.Metrics, logger *slog.Logger) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = DefaultEmbedModel
	}
	opts.Retry = opts.Retry.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		gen:     gen,
		emb:     emb,
		opts:    opts,
		limiter: limiter,
		metrics: metrics,
		logger:  logging.WithOperation(logger, "llm"),
	}
}

// Model returns the completion model name.
func (c *Client) Model() string {
	return c.opts.Model
}

// Complete sends prompt as a single user turn and returns the response text.
// It implements workflow.Completer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return call(ctx, c, c.opts.Model, instrumentation.OperationComplete, func(ctx context.Context) (string, error) {
		resp, err := c.gen.GenerateContent(ctx, c.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0),
		})
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

// call wraps one logical model request with rate limiting, retries, a span
// and metrics.
func call[T any](ctx context.Context, c *Client, model, operation string, op func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	ctx, span := instrumentation.StartLLMSpan(ctx, model, operation)
	defer span.End()

	attempt := 0
	res, err := retry(ctx, c.opts.Retry, func(ctx context.Context) (T, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
		}
		return op(ctx)
	}, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "retrying model call",
			slog.String("model", model),
			slog.String(logging.KeyOperation, operation),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			logging.Err(err))
	})

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		err = fmt.Errorf("%s %s: %w", model, operation, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordLLMRequest(ctx, model, operation, status, time.Since(start))
	return res, err
}
