package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/barbershop/internal/app"
	"github.com/R3E-Network/barbershop/internal/app/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create masters and working hours from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := seed.Load(file)
			if err != nil {
				return err
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required, the in-memory store would discard the seed")
			}
			application, err := app.New(cmd.Context(), cfg, log.Named("app"))
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := seed.Apply(cmd.Context(), f, application.Store, application.Masters, log.Named("seed"))
			out := newPrinter(cmd.OutOrStdout())
			if err != nil {
				out.Error("seed stopped after %d created: %v", res.Created, err)
				return err
			}
			out.Success("%d masters created, %d already present", res.Created, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}
