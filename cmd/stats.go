package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of profiles and the most common skill",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		config, logger := setup()

		a, err := newApplication(ctx, config, logger)
		if err != nil {
			logger.Fatal("building the application", zap.Error(err))
		}
		defer a.Close()

		stats, err := a.store.Stats(ctx)
		if err != nil {
			logger.Fatal("getting stats", zap.Error(err))
		}

		logger.Info("stats", zap.Int("total_users", stats.TotalUsers), zap.String("top_skill", stats.TopSkill))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
