package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/app"
	"github.com/al3dwii/agenticBE/internal/database"
)

var migrateList bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateList {
			names, err := database.PendingMigrations(database.MigrationsFS(), database.MigrationsDir, nil)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		logr := cliLogger(cfg)
		db, err := app.Connect(cmd.Context(), cfg, logr)
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := database.NewSQLMigrator(db.DB, database.MigrationsFS(), database.MigrationsDir, logr)
		if err := db.RunMigrations(cmd.Context(), migrator); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "list embedded migrations without connecting")
	rootCmd.AddCommand(migrateCmd)
}
