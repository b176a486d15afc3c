// Package cmd defines the CLI commands for the rankscope executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/config"
	"github.com/rankscope/rankscope/internal/logging"
)

var (
	cfgFile string

	// rt holds the services shared by all subcommands, built once in the
	// root PersistentPreRunE.
	rt struct {
		cfg    config.Config
		logger *zap.Logger
	}
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankscope",
		Short: "Keyword rank retrieval against the DataForSEO SERP API",
		Long: `rankscope checks where a target domain ranks in search results for a
set of keywords. Live mode issues one immediate request per keyword under a
rate ceiling; standard mode submits queued tasks and polls for results.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Credentials may live in a .env file next to the binary.
			_ = godotenv.Load()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (env vars and defaults are used otherwise)")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newLocationsCmd())

	return cmd
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
