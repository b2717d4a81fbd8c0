package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/barbershop/internal/platform/database"
	"github.com/R3E-Network/barbershop/internal/platform/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withDB := func(cmd *cobra.Command, fn func(db *sql.DB, out *printer) error) error {
		cfg, _, err := opts.load()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		db, err := database.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(db, newPrinter(cmd.OutOrStdout()))
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db *sql.DB, out *printer) error {
				if err := migrations.Apply(cmd.Context(), db); err != nil {
					return err
				}
				return printVersion(db, out)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db *sql.DB, out *printer) error {
				if err := migrations.Rollback(db, steps); err != nil {
					return err
				}
				return printVersion(db, out)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, printVersion)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(db *sql.DB, out *printer) error {
	v, dirty, err := migrations.Version(db)
	if err != nil {
		return err
	}
	if dirty {
		out.Warning("schema version %d is dirty", v)
		return nil
	}
	out.Success("schema version %d", v)
	return nil
}
