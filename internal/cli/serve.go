package cli

import (
	"github.com/spf13/cobra"

	"github.com/R3E-Network/barbershop/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, log.Named("app"))
			if err != nil {
				log.WithError(err).Error("startup failed")
				return err
			}
			if err := application.Run(cmd.Context()); err != nil {
				log.WithError(err).Error("server exited with error")
				return err
			}
			return nil
		},
	}
}
