package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/config"
	"github.com/teemow/inboxreply/internal/gmail"
	"github.com/teemow/inboxreply/internal/google"
	"github.com/teemow/inboxreply/internal/history"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/knowledge"
	"github.com/teemow/inboxreply/internal/llm"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/queue"
	"github.com/teemow/inboxreply/internal/workflow"
)

// app holds the configuration and the lazily opened collaborators of one
// command invocation. Close releases everything that was opened.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger

	rdb   *redis.Client
	pool  *pgxpool.Pool
	llmc  *llm.Client
	gmc   *gmail.Client
	store *knowledge.Store
	hist  *history.Store

	closers []func(context.Context) error
}

// loadConfig reads the configuration, letting the given command flags
// override their config keys when they were set explicitly.
func loadConfig(cmd *cobra.Command, opts *globalOptions, flagKeys map[string]string) (*config.Config, error) {
	loader := config.NewLoader(opts.configPath)
	for flag, key := range flagKeys {
		if err := loader.BindFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, err
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newApp builds the logger and the instrumentation provider. Logs go to
// stderr so stdout stays free for command output and the MCP protocol.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	instrConfig := instrumentationConfig(cfg)
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		metrics:  provider.Metrics(),
		audit:    instrumentation.NewAuditLogger(logger, instrConfig.Audit),
	}
	a.closers = append(a.closers, provider.Shutdown)
	return a, nil
}

// instrumentationConfig maps the instrumentation and audit sections onto the
// provider's settings, stamped with the binary's version.
func instrumentationConfig(cfg *config.Config) instrumentation.Config {
	in := cfg.Instrumentation
	return instrumentation.Config{
		Enabled:         in.Enabled,
		ServiceName:     in.ServiceName,
		ServiceVersion:  version,
		InstanceID:      in.InstanceID,
		MetricsExporter: in.MetricsExporter,
		TracingExporter: in.TracingExporter,
		OTLPEndpoint:    in.OTLPEndpoint,
		OTLPInsecure:    in.OTLPInsecure,
		SamplingRate:    in.SamplingRate,
		DetailedLabels:  in.DetailedLabels,
		Audit: instrumentation.AuditConfig{
			Enabled:    cfg.Audit.Enabled,
			IncludePII: cfg.Audit.IncludePII,
		},
	}
}

// Close releases opened collaborators in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	if err := a.cfg.RequireRedis(); err != nil {
		return nil, err
	}

	redis.SetLogger(logging.NewPrintfAdapter(a.logger, slog.LevelWarn))
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}

	a.rdb = rdb
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	return rdb, nil
}

func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if err := a.cfg.RequirePostgres(); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	a.pool = pool
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (a *app) llm(ctx context.Context) (*llm.Client, error) {
	if a.llmc != nil {
		return a.llmc, nil
	}
	if err := a.cfg.RequireLLM(); err != nil {
		return nil, err
	}

	c, err := llm.NewClient(ctx, llm.Options{
		APIKey:            a.cfg.LLM.APIKey,
		Model:             a.cfg.LLM.Model,
		EmbedModel:        a.cfg.LLM.EmbedModel,
		Dimensions:        a.cfg.Postgres.EmbeddingDim,
		RequestsPerSecond: a.cfg.LLM.RequestsPerSecond,
		Burst:             a.cfg.LLM.Burst,
		Retry: llm.RetryPolicy{
			MaxRetries: a.cfg.LLM.MaxRetries,
			MaxElapsed: a.cfg.LLM.MaxElapsed,
		},
	}, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}
	a.llmc = c
	return c, nil
}

func (a *app) gmail(ctx context.Context) (*gmail.Client, error) {
	if a.gmc != nil {
		return a.gmc, nil
	}
	if err := a.cfg.RequireGmail(); err != nil {
		return nil, err
	}

	hc, err := google.HTTPClient(ctx, a.cfg.Gmail.CredentialsFile, a.cfg.Gmail.TokenFile)
	if err != nil {
		return nil, err
	}
	c, err := gmail.NewClient(ctx, hc, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}
	a.gmc = c
	return c, nil
}

// mailboxAddress returns the configured service address, asking Gmail for
// the profile address when none is configured.
func (a *app) mailboxAddress(ctx context.Context) (string, error) {
	if a.cfg.Gmail.Address != "" {
		return a.cfg.Gmail.Address, nil
	}
	gmc, err := a.gmail(ctx)
	if err != nil {
		return "", err
	}
	return gmc.Address(ctx)
}

func (a *app) knowledge(ctx context.Context) (*knowledge.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	pool, err := a.postgres(ctx)
	if err != nil {
		return nil, err
	}
	llmc, err := a.llm(ctx)
	if err != nil {
		return nil, err
	}

	store := knowledge.NewStore(pool, llmc, a.metrics, a.logger)
	if err := store.EnsureSchema(ctx, a.cfg.Postgres.EmbeddingDim); err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) history(ctx context.Context) (*history.Store, error) {
	if a.hist != nil {
		return a.hist, nil
	}
	pool, err := a.postgres(ctx)
	if err != nil {
		return nil, err
	}

	hist := history.NewStore(pool)
	if err := hist.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	a.hist = hist
	return hist, nil
}

func (a *app) jobQueue(ctx context.Context) (*queue.JobQueue, error) {
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return queue.NewJobQueue(rdb, a.cfg.Queue.MaxAttempts, a.metrics, a.logger), nil
}

// orchestrator wires the workflow. A dry run logs replies and escalations
// instead of delivering them and needs neither Gmail nor Redis.
func (a *app) orchestrator(ctx context.Context, dryRun bool) (*workflow.Orchestrator, error) {
	llmc, err := a.llm(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.knowledge(ctx)
	if err != nil {
		return nil, err
	}

	deps := workflow.Dependencies{
		Completer: llmc,
		Retriever: store,
		Prompts:   workflow.NewPromptSource(a.cfg.Workflow.PromptsDir),
		Logger:    a.logger,
		Metrics:   a.metrics,
		Audit:     a.audit,
	}

	if dryRun {
		deps.Sender = workflow.NewLogSender(a.logger)
		deps.Escalation = workflow.NewLogEscalationSink(a.logger)
	} else {
		gmc, err := a.gmail(ctx)
		if err != nil {
			return nil, err
		}
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		deps.Sender = gmc
		deps.Escalation = queue.NewEscalationSink(rdb)
		deps.Ledger = queue.NewSentLedger(rdb, a.cfg.Redis.SentTTL, a.metrics)
	}

	return workflow.NewOrchestrator(deps, workflow.Options{
		TopK:         a.cfg.Workflow.TopK,
		StageTimeout: a.cfg.Workflow.StageTimeout,
		RunTimeout:   a.cfg.Workflow.RunTimeout,
	})
}
