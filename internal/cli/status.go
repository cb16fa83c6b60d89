package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show flowbridge paths and a configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flowbridge %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Env:      %s\n", paths.Env)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			df := cfg.Dialogflow
			fmt.Fprintf(out, "Agent:    project=%s lang=%s welcome=%s\n", orNone(df.ProjectID), df.LanguageCode, df.WelcomeEvent)
			fmt.Fprintf(out, "Auth:     %s\n", credentialSource(df))
			fmt.Fprintf(out, "Bot:      %s\n", cfg.Bot.Username)

			if cfg.Fallback.Limit > 0 {
				fmt.Fprintf(out, "Fallback: limit=%d department=%s\n", cfg.Fallback.Limit, orNone(cfg.Fallback.TargetDepartment))
			} else {
				fmt.Fprintln(out, "Fallback: escalation disabled")
			}

			if cfg.Handover.Broker.URL != "" {
				fmt.Fprintf(out, "Handover: department=%s broker exchange=%s key=%s\n",
					orNone(cfg.Handover.DefaultDepartment), cfg.Handover.Broker.Exchange, cfg.Handover.Broker.RoutingKey)
			} else {
				fmt.Fprintf(out, "Handover: department=%s (no broker)\n", orNone(cfg.Handover.DefaultDepartment))
			}

			storePath := paths.StorePath(cfg.Store)
			if cfg.Store.Driver == "memory" {
				storePath = "in-memory"
			}
			fmt.Fprintf(out, "Store:    %s (%s)\n", cfg.Store.Driver, storePath)
			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

			hooks := len(cfg.Hooks.Handover) + len(cfg.Hooks.FallbackEscalation) + len(cfg.Hooks.ReplySent) +
				len(cfg.Hooks.GatewayStart) + len(cfg.Hooks.GatewayStop)
			fmt.Fprintf(out, "Hooks:    %d command(s)\n", hooks)

			issues := append(config.Validate(&cfg), config.ValidateAgent(&cfg)...)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}

func credentialSource(df config.DialogflowConfig) string {
	switch {
	case df.CredentialsFile != "":
		return "service account file " + df.CredentialsFile
	case df.ClientEmail != "" && df.PrivateKey != "":
		return "inline key for " + df.ClientEmail
	default:
		return "(not configured)"
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
