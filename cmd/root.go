package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
}

// version will be set by main
var version = "dev"

// rootCmd represents the base command for the inboxreply application
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "inboxreply",
		Short: "Answers customer-support email with a guarded draft and review workflow",
		Long: `inboxreply reads unread support email from a Gmail mailbox, drafts an
answer grounded in an indexed knowledge base and sends it only when a
reviewer model approves. Everything else is escalated to a human.

It can run as:
  - A long-running responder (serve)
  - One-shot commands for ingesting, answering and indexing
  - An MCP (Model Context Protocol) server for AI assistants (mcp)`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: ./inboxreply.yaml or ~/.config/inboxreply/inboxreply.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newRespondCmd(opts),
		newIndexCmd(opts),
		newWatchCmd(opts),
		newAuthCmd(opts),
		newMCPCmd(opts),
		newGenerateDocsCmd(),
		newVersionCmd(),
	)

	return cmd
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxreply version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
