package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/gateway"
	"github.com/soyeahso/flowbridge/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the livechat webhook and operator gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// --log-level wins over the config file.
			if !cmd.Flags().Changed("log-level") {
				logger, closer, err := logging.NewWithOptions(logging.Options{
					Level: cfg.Logging.Level,
					Style: cfg.Logging.ConsoleStyle,
					File:  paths.LogPath(cfg.Logging.File),
				})
				if err != nil {
					return err
				}
				defer closer.Close()
				log = logger
			}

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			srv := gateway.New(cfg, log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(a.hooks),
				gateway.WithLivechat(a.store, a.livechat),
				gateway.WithTurns(a.orch),
				gateway.WithFallback(a.tracker),
				gateway.WithHandoverLog(a.store),
			)

			log.Info().
				Str("project", cfg.Dialogflow.ProjectID).
				Str("bot", cfg.Bot.Username).
				Str("store", cfg.Store.Driver).
				Int("fallbackLimit", cfg.Fallback.Limit).
				Msg("bridge ready")

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
