package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/ingest"
	"github.com/teemow/inboxreply/internal/logging"
)

func newIngestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Queue unread support messages once and exit",
		Long: `Run a single ingest pass: list unread messages matching the ingest query,
record each question in the conversation history, queue it for the workers
and mark it read. Prints the pass statistics as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, map[string]string{
				"query": "ingest.query",
				"max":   "ingest.max_messages",
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(ctx); err != nil {
					a.logger.Warn("Error during shutdown", logging.Err(err))
				}
			}()

			gmc, err := a.gmail(ctx)
			if err != nil {
				return err
			}
			hist, err := a.history(ctx)
			if err != nil {
				return err
			}
			jobs, err := a.jobQueue(ctx)
			if err != nil {
				return err
			}
			address, err := a.mailboxAddress(ctx)
			if err != nil {
				return fmt.Errorf("failed to determine mailbox address: %w", err)
			}

			stats, err := ingest.New(gmc, hist, jobs, ingest.Options{
				Query:       cfg.Ingest.Query,
				MaxMessages: cfg.Ingest.MaxMessages,
				Self:        address,
			}, a.logger).Ingest(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().String("query", "", "Gmail search query (default from config: is:unread in:inbox)")
	cmd.Flags().Int64("max", 0, "Maximum number of messages per pass (default from config: 25)")

	return cmd
}
