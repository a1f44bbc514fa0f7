package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/matching"
	"github.com/spigell/peermatch/internal/ratelimit"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Print the ranked matches of a person",
	Run: func(cmd *cobra.Command, _ []string) {
		matches(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchesCmd)

	matchesCmd.Flags().Int64P("person-id", "p", 0, "person to find matches for")
	matchesCmd.Flags().BoolP("force", "f", false, "ignore and do not record the match cooldown")
	matchesCmd.MarkFlagRequired("person-id")
}

func matches(cmd *cobra.Command) {
	ctx := context.Background()
	config, logger := setup()

	personID, _ := cmd.Flags().GetInt64("person-id")
	force, _ := cmd.Flags().GetBool("force")

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer a.Close()

	limiter := a.limiter()
	if !force {
		decision, err := limiter.Check(ctx, personID, ratelimit.ActionMatches, a.cooldown())
		if err != nil {
			logger.Fatal("checking the cooldown", zap.Error(err))
		}
		if !decision.Allowed {
			logger.Info("exiting",
				zap.String("reason", "match search is cooling down"),
				zap.Int("remaining_seconds", decision.RemainingSeconds()),
			)
			return
		}
	}

	result, err := a.engine().FindMatches(ctx, personID)
	switch {
	case errors.Is(err, matching.ErrNoProfile), errors.Is(err, matching.ErrNoEmbedding):
		logger.Info("exiting", zap.String("reason", err.Error()))
		return
	case err != nil:
		logger.Fatal("finding matches", zap.Error(err))
	}

	if !force {
		if err := limiter.Record(ctx, personID, ratelimit.ActionMatches); err != nil {
			logger.Fatal("recording the search", zap.Error(err))
		}
	}

	logger.Info("ranked matches", zap.Int("count", len(result.Matches)))
	for i, m := range result.Matches {
		fmt.Printf("%d. %s (id %d) score %.3f: %s\n", i+1, m.Profile.Handle(), m.Profile.PersonID, m.Score, m.Reason)
	}
}
