package main

import (
	"github.com/spf13/cobra"

	"production-tracker-backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		gormDB, err := db.Init(&cfg.Database, log)
		if err != nil {
			return err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		log.Info("schema is up to date", "driver", cfg.Database.Driver)
		return nil
	},
}
