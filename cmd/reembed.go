package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/repair"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Compute embeddings for profiles that were saved without one",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		config, logger := setup()

		concurrency, _ := cmd.Flags().GetInt("concurrency")

		a, err := newApplication(ctx, config, logger)
		if err != nil {
			logger.Fatal("building the application", zap.Error(err))
		}
		defer a.Close()

		if a.embedder == nil {
			logger.Fatal("an embedding provider is required to repair profiles")
		}

		report, err := repair.Run(ctx, a.store, a.embedder, repair.Options{
			Concurrency: concurrency,
			Logger:      logger,
			Metrics:     a.metrics,
		})
		if err != nil {
			logger.Fatal("repairing embeddings", zap.Error(err))
		}

		logger.Info("embeddings repaired",
			zap.Int("scanned", report.Scanned),
			zap.Int("repaired", report.Repaired),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	},
}

func init() {
	rootCmd.AddCommand(reembedCmd)

	reembedCmd.Flags().IntP("concurrency", "c", 4, "number of profiles embedded in parallel")
}
