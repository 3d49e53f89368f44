package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/logging"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		stop   bool
		labels string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register (or stop) Gmail push notifications to Pub/Sub",
		Long: `Ask Gmail to publish mailbox changes to the configured Pub/Sub topic
(watch.project / watch.topic). A push subscription on that topic pointing at
serve's /pubsub/push endpoint then triggers ingest passes.

Gmail expires a watch after seven days; run this command at least weekly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, nil)
			if err != nil {
				return err
			}
			if l := parseCommaSeparatedList(labels); l != nil {
				cfg.Watch.Labels = l
			}
			if !stop {
				if err := cfg.RequireWatch(); err != nil {
					return err
				}
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
			out := cmd.OutOrStdout()

			if stop {
				if err := gmc.StopWatch(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Push notifications stopped")
				return nil
			}

			res, err := gmc.Watch(ctx, cfg.TopicName(), cfg.Watch.Labels)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s on %s\n", strings.Join(cfg.Watch.Labels, ","), cfg.TopicName())
			fmt.Fprintf(out, "History ID: %d\n", res.HistoryID)
			fmt.Fprintf(out, "Expires:    %s\n", res.Expiration.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().BoolVar(&stop, "stop", false, "Stop push notifications instead of starting them")
	cmd.Flags().StringVar(&labels, "labels", "", "Comma-separated label IDs to watch (default from config: INBOX)")

	return cmd
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
