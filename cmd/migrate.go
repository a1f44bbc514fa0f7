package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		config, logger := setup()

		db := config.Database
		if db == nil || strings.EqualFold(strings.TrimSpace(db.Driver), "memory") {
			logger.Info("exiting", zap.String("reason", "the in-memory store has no schema"))
			return
		}

		st, err := store.Open(db.Driver, db.DSN, logger)
		if err != nil {
			logger.Fatal("opening the database", zap.Error(err))
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			logger.Fatal("migrating", zap.Error(err))
		}
		logger.Info("schema is up to date", zap.String("driver", db.Driver))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
