package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/flowbridge/internal/auth"
	"github.com/soyeahso/flowbridge/internal/config"
)

func newTokenCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch a Dialogflow access token with the configured service account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if issues := config.ValidateAgent(&cfg); len(issues) > 0 {
				return fmt.Errorf("dialogflow config: %s", issues[0])
			}

			creds, err := auth.CredentialsFromConfig(cfg.Dialogflow)
			if err != nil {
				return err
			}
			provider := auth.NewProvider(creds, auth.ProviderConfig{Retries: cfg.Dialogflow.TokenRetries}, log)

			tok, err := provider.AccessToken(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if show {
				fmt.Fprintln(out, tok.Token)
			} else {
				fmt.Fprintln(out, maskToken(tok.Token))
			}
			fmt.Fprintf(out, "account: %s\nexpires: %s (in %s)\n",
				creds.ClientEmail,
				tok.ExpiresAt.Format(time.RFC3339),
				time.Until(tok.ExpiresAt).Round(time.Second))
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the full token")
	return cmd
}

// maskToken keeps the first and last four characters.
func maskToken(s string) string {
	if len(s) <= 12 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
