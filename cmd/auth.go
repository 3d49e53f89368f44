package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/google"
)

func newAuthCmd(opts *globalOptions) *cobra.Command {
	var (
		code  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to the service mailbox",
		Long: `Run the OAuth consent flow for the service mailbox.

Prints the Google consent URL, then reads the authorization code from
--code or standard input and stores the resulting token in
gmail.token_file. The token is refreshed automatically afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, nil)
			if err != nil {
				return err
			}
			if err := cfg.RequireGmail(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if google.HasToken(cfg.Gmail.TokenFile) && !force {
				fmt.Fprintf(out, "A token already exists at %s (use --force to replace it)\n", cfg.Gmail.TokenFile)
				return nil
			}

			conf, err := google.LoadConfig(cfg.Gmail.CredentialsFile)
			if err != nil {
				return err
			}

			if code == "" {
				fmt.Fprintf(out, "Open this URL in a browser signed in to the service mailbox:\n\n  %s\n\n", google.AuthURL(conf, uuid.NewString()))
				fmt.Fprint(out, "Paste the authorization code: ")
				code, err = readAuthCode(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			if _, err := google.Exchange(cmd.Context(), conf, code, cfg.Gmail.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.Gmail.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code (default: read from stdin)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing token")

	return cmd
}

// readAuthCode reads the first non-empty line from r.
func readAuthCode(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if code := strings.TrimSpace(scanner.Text()); code != "" {
			return code, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	return "", errors.New("no authorization code provided")
}
