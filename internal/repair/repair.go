package repair

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/peermatch/internal/ai"
	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/metrics"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store"
)

const defaultConcurrency = 4

type Options struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
}

// Report counts what a run did. Skipped profiles changed while their vector
// was computed; Failed ones could not be embedded.
type Report struct {
	Scanned  int
	Repaired int
	Skipped  int
	Failed   int
}

// Run recomputes the embedding of every profile stored without one. A vector
// is only attached when the profile is unchanged since it was listed.
// Provider failures are counted, not returned; store errors abort the run.
func Run(ctx context.Context, st store.Store, embedder ai.Embedder, opts Options) (*Report, error) {
	log := logger.WithFields(opts.Logger, zap.String("job", "reembed"))
	if embedder != nil {
		log = logger.WithProviderFields(log, embedder.Name(), "")
	}

	missing, err := st.ListMissingEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles without embedding: %w", err)
	}

	report := &Report{Scanned: len(missing)}
	if len(missing) == 0 || embedder == nil {
		report.Failed = len(missing)
		return report, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var repaired, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range missing {
		g.Go(func() error {
			personLog := logger.WithFields(log, logger.PersonFields(p.PersonID, "")...)

			vector, err := embedder.Embed(gctx, profile.EmbeddingText(p.Fields))
			if err != nil || len(vector) == 0 {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				opts.Metrics.EmbeddingFailure(embedder.Name())
				personLog.Warn("embedding still unavailable", zap.Error(err))
				return nil
			}

			ok, err := st.SetEmbedding(gctx, p.PersonID, vector, p.LastUpdated)
			if err != nil {
				return fmt.Errorf("store embedding for %d: %w", p.PersonID, err)
			}
			if !ok {
				skipped.Add(1)
				personLog.Info("profile changed during repair, keeping it untouched")
				return nil
			}

			repaired.Add(1)
			personLog.Debug("embedding repaired", zap.Int("dimension", len(vector)))
			return nil
		})
	}

	waitErr := g.Wait()

	report.Repaired = int(repaired.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	opts.Metrics.Repaired("repaired", report.Repaired)
	opts.Metrics.Repaired("skipped", report.Skipped)
	opts.Metrics.Repaired("failed", report.Failed)

	if waitErr != nil {
		return report, waitErr
	}

	log.Info("embedding repair finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
