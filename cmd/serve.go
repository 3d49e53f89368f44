package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxreply/internal/config"
	"github.com/teemow/inboxreply/internal/ingest"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/server"
	"github.com/teemow/inboxreply/internal/worker"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the responder: ingest, answer and escalate until stopped",
		Long: `Run the long-lived responder.

serve polls the mailbox (and reacts to Gmail Pub/Sub push notifications on
POST /pubsub/push), queues every new question, and answers queued questions
with a pool of workers. Each run goes through the guard, draft and review
stages; only approved drafts are sent, everything else is escalated.

Endpoints:
  - <http-addr>/pubsub/push     Gmail push notifications
  - <http-addr>/healthz         Liveness probe
  - <http-addr>/readyz          Readiness probe (checks Redis and Postgres)
  - <metrics-addr>/metrics      Prometheus metrics (with the prometheus exporter)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, map[string]string{
				"concurrency":      "worker.concurrency",
				"http-addr":        "server.http_addr",
				"metrics-addr":     "server.metrics_addr",
				"metrics-enabled":  "server.metrics_enabled",
				"metrics-exporter": "instrumentation.metrics_exporter",
				"tracing-exporter": "instrumentation.tracing_exporter",
				"otlp-endpoint":    "instrumentation.otlp_endpoint",
				"poll-interval":    "ingest.poll_interval",
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().Int("concurrency", 0, "Number of concurrent workers (default from config: 4)")
	cmd.Flags().String("http-addr", "", "Address for the push and health endpoints (default from config: :8080)")
	cmd.Flags().String("metrics-addr", "", "Address for the Prometheus metrics endpoint (default from config: :9090)")
	cmd.Flags().Bool("metrics-enabled", true, "Serve Prometheus metrics")
	cmd.Flags().String("metrics-exporter", "", "Metrics exporter: prometheus, otlp or stdout (default from config: prometheus)")
	cmd.Flags().String("tracing-exporter", "", "Trace exporter: otlp, stdout or none (default from config: none)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP collector host:port for the otlp exporters")
	cmd.Flags().Duration("poll-interval", 0, "Interval between mailbox polls, 0 disables polling (default from config: 5m)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("Error during shutdown", logging.Err(err))
		}
	}()
	logger := logging.WithOperation(a.logger, "serve")

	orch, err := a.orchestrator(ctx, false)
	if err != nil {
		return err
	}
	jobs, err := a.jobQueue(ctx)
	if err != nil {
		return err
	}
	hist, err := a.history(ctx)
	if err != nil {
		return err
	}
	gmc, err := a.gmail(ctx)
	if err != nil {
		return err
	}
	address, err := a.mailboxAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine mailbox address: %w", err)
	}

	ingestor := ingest.New(gmc, hist, jobs, ingest.Options{
		Query:       cfg.Ingest.Query,
		MaxMessages: cfg.Ingest.MaxMessages,
		Self:        address,
	}, a.logger)
	scheduler := ingest.NewScheduler(ingestor, cfg.Ingest.PollInterval, a.logger)

	pool := worker.NewPool(jobs, orch, hist, worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		PopTimeout:  cfg.Queue.PopTimeout,
	}, a.logger)

	health := server.NewHealthChecker(map[string]server.CheckFunc{
		"redis":    jobs.Ping,
		"postgres": hist.Ping,
	})
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:    cfg.Server.HTTPAddr,
		Health:  health,
		Push:    server.NewPushHandler(cfg.Server.PushToken, address, scheduler.Notify, a.logger),
		Metrics: a.metrics,
		Logger:  a.logger,
	})

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && a.provider.ServesPrometheus() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:     cfg.Server.MetricsAddr,
			Provider: a.provider,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return pool.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		health.SetShuttingDown()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	health.SetReady(true)
	logger.Info("Responder started",
		"mailbox", logging.AnonymizeEmail(address),
		"http_addr", httpServer.Addr(),
		"workers", cfg.Worker.Concurrency,
		"poll_interval", cfg.Ingest.PollInterval)

	return g.Wait()
}
