package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed default attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storageCfg := config.GetStorageConfig()
			dbManager := database.NewManager(ZLogger)
			defer dbManager.Close()

			switch storageCfg.Type {
			case "postgres":
				if err := dbManager.ConnectPostgres(postgresConfig()); err != nil {
					return err
				}
			case "sqlite":
				if err := dbManager.ConnectSqlite(storageCfg.SQLite.Path); err != nil {
					return err
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "storage type %q has no schema\n", storageCfg.Type)
				return nil
			}

			if err := dbManager.Setup(); err != nil {
				return err
			}
			Logger.Info("Database migrated", "type", storageCfg.Type)
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}
