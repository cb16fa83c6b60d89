package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// Set by the root command before any subcommand runs.
var (
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	var configFile, logLevel string

	cmd := &cobra.Command{
		Use:   "flowbridge",
		Short: "flowbridge connects livechat rooms to a Dialogflow agent",
		Long: "flowbridge answers livechat visitors with a Dialogflow agent, syncs agent " +
			"parameters into visitor profiles, and hands rooms over to human departments.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			resolved, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			if configFile != "" {
				resolved.Config = configFile
			}
			paths = resolved

			// godotenv never overrides variables already in the environment.
			if err := godotenv.Load(paths.Env); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			log = logging.New(nil, logLevel)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default $FLOWBRIDGE_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn, error or silent")

	cmd.AddCommand(
		newServeCmd(),
		newMessageCmd(),
		newTokenCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the flowbridge command line.
func Execute() error {
	return newRootCmd().Execute()
}
