package config

import (
	"errors"
	"fmt"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks value ranges. Settings only some commands need (API key,
// DSN, mailbox files) are checked by the Require* methods instead.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		add("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format)
	}

	if c.Workflow.TopK < 0 {
		add("workflow.top_k must not be negative")
	}
	if c.Workflow.StageTimeout <= 0 {
		add("workflow.stage_timeout must be positive")
	}
	if c.Workflow.RunTimeout <= 0 {
		add("workflow.run_timeout must be positive")
	}
	if c.Workflow.StageTimeout > c.Workflow.RunTimeout {
		add("workflow.stage_timeout (%s) exceeds workflow.run_timeout (%s)", c.Workflow.StageTimeout, c.Workflow.RunTimeout)
	}

	if c.LLM.RequestsPerSecond < 0 {
		add("llm.requests_per_second must not be negative")
	}
	if c.LLM.RequestsPerSecond > 0 && c.LLM.Burst < 1 {
		add("llm.burst must be at least 1 when rate limiting is enabled")
	}
	if c.LLM.MaxRetries < 0 {
		add("llm.max_retries must not be negative")
	}

	if c.Postgres.EmbeddingDim < 1 {
		add("postgres.embedding_dim must be positive")
	}
	if c.Ingest.MaxMessages < 1 {
		add("ingest.max_messages must be at least 1")
	}
	if c.Ingest.PollInterval < 0 {
		add("ingest.poll_interval must not be negative")
	}
	if c.Queue.MaxAttempts < 1 {
		add("queue.max_attempts must be at least 1")
	}
	if c.Queue.PopTimeout <= 0 {
		add("queue.pop_timeout must be positive")
	}
	if c.Worker.Concurrency < 1 {
		add("worker.concurrency must be at least 1")
	}
	if c.Knowledge.ChunkSize < 1 {
		add("knowledge.chunk_size must be positive")
	}
	if c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		add("knowledge.chunk_overlap must be in [0, chunk_size)")
	}

	if c.Instrumentation.Enabled {
		in := c.Instrumentation
		switch in.MetricsExporter {
		case instrumentation.ExporterPrometheus, instrumentation.ExporterOTLP, instrumentation.ExporterStdout:
		default:
			add("instrumentation.metrics_exporter must be prometheus, otlp or stdout, got %q", in.MetricsExporter)
		}
		switch in.TracingExporter {
		case instrumentation.ExporterOTLP, instrumentation.ExporterStdout, instrumentation.ExporterNone:
		default:
			add("instrumentation.tracing_exporter must be otlp, stdout or none, got %q", in.TracingExporter)
		}
		if in.SamplingRate < 0 || in.SamplingRate > 1 {
			add("instrumentation.sampling_rate must be in [0, 1], got %g", in.SamplingRate)
		}
		if in.OTLPEndpoint == "" && (in.MetricsExporter == instrumentation.ExporterOTLP || in.TracingExporter == instrumentation.ExporterOTLP) {
			add("instrumentation.otlp_endpoint is required by the otlp exporter")
		}
	}

	return errors.Join(errs...)
}

// RequireLLM reports whether a Gemini API key is configured.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm.api_key is required (set %s_LLM_API_KEY or GEMINI_API_KEY)", ErrInvalid, EnvPrefix)
	}
	return nil
}

func (c *Config) RequirePostgres() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("%w: postgres.dsn is required", ErrInvalid)
	}
	return nil
}

func (c *Config) RequireRedis() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required", ErrInvalid)
	}
	return nil
}

// RequireGmail checks the service mailbox settings needed to read and send.
func (c *Config) RequireGmail() error {
	var errs []error
	if c.Gmail.CredentialsFile == "" {
		errs = append(errs, fmt.Errorf("%w: gmail.credentials_file is required", ErrInvalid))
	}
	if c.Gmail.TokenFile == "" {
		errs = append(errs, fmt.Errorf("%w: gmail.token_file is required", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c *Config) RequireWatch() error {
	if c.Watch.Project == "" || c.Watch.Topic == "" {
		return fmt.Errorf("%w: watch.project and watch.topic are required", ErrInvalid)
	}
	return nil
}

// TopicName returns the fully qualified Pub/Sub topic for users.watch.
func (c *Config) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", c.Watch.Project, c.Watch.Topic)
}
