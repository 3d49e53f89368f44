package cmd

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/queue"
	"github.com/teemow/inboxreply/internal/tools/support_tools"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the support tools over MCP (stdio)",
		Long: `Start an MCP server on standard input and output exposing:

  - support_answer_question   Dry-run a question through the workflow (never sends mail)
  - support_list_escalations  List recent escalations
  - support_queue_status      Show waiting and dead-lettered jobs

Tools whose backing service is not configured or not reachable are left
out. Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					a.logger.Warn("Error during shutdown", logging.Err(err))
				}
			}()

			deps := a.supportToolDependencies(ctx)

			// Note: mcp.Implementation has Title field but WithTitle() ServerOption not available in v0.43.0
			mcpSrv := mcpserver.NewMCPServer("inboxreply", version,
				mcpserver.WithToolCapabilities(true),
			)
			if err := support_tools.RegisterSupportTools(mcpSrv, deps); err != nil {
				return fmt.Errorf("failed to register support tools: %w", err)
			}

			if err := mcpserver.ServeStdio(mcpSrv); err != nil {
				return fmt.Errorf("server stopped with error: %w", err)
			}
			return nil
		},
	}
}

// supportToolDependencies connects what it can; each unavailable backend
// only disables the tools that need it.
func (a *app) supportToolDependencies(ctx context.Context) support_tools.Dependencies {
	logger := logging.WithOperation(a.logger, "mcp")
	deps := support_tools.Dependencies{
		Metrics: a.metrics,
		Logger:  a.logger,
	}

	if orch, err := a.orchestrator(ctx, true); err != nil {
		logger.Warn("Answer tool disabled", logging.Err(err))
	} else {
		deps.DryRun = orch
	}

	if rdb, err := a.redis(ctx); err != nil {
		logger.Warn("Escalation and queue tools disabled", logging.Err(err))
	} else {
		deps.Escalations = queue.NewEscalationSink(rdb)
		deps.Queue = queue.NewJobQueue(rdb, a.cfg.Queue.MaxAttempts, a.metrics, a.logger)
	}

	return deps
}
