// Package cli implements the barbershop command line: the API server and
// the database maintenance commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/barbershop/internal/config"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
}

// NewRootCmd builds the command tree. Without a subcommand it serves the API.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCmd(opts)
	cmd := &cobra.Command{
		Use:          "barbershop",
		Short:        "Barbershop booking backend with Telegram and Make integration",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(serve, newMigrateCmd(opts), newSeedCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}
