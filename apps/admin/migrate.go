package main

import (
	"github.com/spf13/cobra"

	"github.com/avsnarang/scholarise/storage/database"
)

var (
	migrateUpFunc     = database.Migrate // mockable
	migrateDownFunc   = database.MigrateDown
	migrateStatusFunc = database.MigrationStatus
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := database.CreateIfNotExist(cli.conf); err != nil {
					return err
				}
				return migrateUpFunc(cli.db)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrateDownFunc(cli.db)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the status of every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrateStatusFunc(cli.db)
			},
		},
	)
	return cmd
}
