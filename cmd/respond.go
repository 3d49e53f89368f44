package cmd

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/workflow"
)

type respondOptions struct {
	question  string
	sender    string
	subject   string
	threadID  string
	messageID string
	dryRun    bool
}

func newRespondCmd(opts *globalOptions) *cobra.Command {
	ro := &respondOptions{}

	cmd := &cobra.Command{
		Use:   "respond [question]",
		Short: "Run one question through the workflow and print the result",
		Long: `Run a single question through the guard, draft and review stages.

Without --dry-run an approved answer is sent through Gmail as a reply to
--message-id and escalations are recorded in Redis. With --dry-run the
reply and escalation are only logged; no mail is sent.

The question is taken from --question or from the positional arguments.`,
		Example: `  inboxreply respond --dry-run --sender "Jane <jane@example.com>" "How long does a visa take?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ro.question == "" {
				ro.question = strings.Join(args, " ")
			}
			req := ro.request()
			if err := req.Validate(); err != nil {
				return err
			}

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
				if err := a.Close(ctx); err != nil {
					a.logger.Warn("Error during shutdown", logging.Err(err))
				}
			}()

			orch, err := a.orchestrator(ctx, ro.dryRun)
			if err != nil {
				return err
			}
			hist, err := a.history(ctx)
			if err != nil {
				return err
			}
			req.ChatHistory, err = hist.History(ctx, req.OriginalMessage.ThreadID, req.OriginalMessage.MessageID)
			if err != nil {
				return err
			}

			result, runErr := orch.Run(ctx, req)
			if result.Action == "" {
				return runErr
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if errors.Is(runErr, workflow.ErrSendFailed) {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&ro.question, "question", "q", "", "Question to answer")
	cmd.Flags().StringVar(&ro.sender, "sender", "Customer <customer@example.com>", "From header of the customer")
	cmd.Flags().StringVar(&ro.subject, "subject", "Question", "Subject of the customer message")
	cmd.Flags().StringVar(&ro.threadID, "thread", "", "Conversation thread ID (default: a new thread)")
	cmd.Flags().StringVar(&ro.messageID, "message-id", "", "Gmail message ID to reply to")
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "Log the reply or escalation instead of delivering it")

	return cmd
}

func (ro *respondOptions) request() workflow.Request {
	thread := strings.TrimSpace(ro.threadID)
	if thread == "" {
		thread = "cli-" + uuid.NewString()
	}
	return workflow.Request{
		Question: strings.TrimSpace(ro.question),
		OriginalMessage: workflow.OriginalMessage{
			MessageID: strings.TrimSpace(ro.messageID),
			ThreadID:  thread,
			Sender:    strings.TrimSpace(ro.sender),
			Subject:   strings.TrimSpace(ro.subject),
		},
	}
}
