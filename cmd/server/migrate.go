package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bluefermion/reviews/internal/repository"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			return printVersion(cmd, repo)
		},
	}

	rollbackSteps int
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Rollback(cmd.Context(), rollbackSteps); err != nil {
				return err
			}
			return printVersion(cmd, repo)
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()
			return printVersion(cmd, repo)
		},
	}
)

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openRepository(cmd *cobra.Command) (*repository.SQLRepository, error) {
	return repository.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
}

func printVersion(cmd *cobra.Command, repo *repository.SQLRepository) error {
	v, err := repo.MigrationVersion(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version: %d\n", repo.Driver(), v)
	return nil
}
