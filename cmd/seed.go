package cmd

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/ai"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store"
)

//go:embed seed.yaml
var builtinSeed []byte

type seedProfile struct {
	PersonID    int64    `mapstructure:"person-id"`
	Username    string   `mapstructure:"username"`
	Affiliation string   `mapstructure:"affiliation"`
	Stage       string   `mapstructure:"stage"`
	Skills      []string `mapstructure:"skills"`
	Interests   []string `mapstructure:"interests"`
	Goals       string   `mapstructure:"goals"`
	Language    string   `mapstructure:"language"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo profiles",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		config, logger := setup()

		data := builtinSeed
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			var err error
			if data, err = os.ReadFile(file); err != nil {
				logger.Fatal("reading the seed file", zap.Error(err))
			}
		}

		profiles, err := parseSeed(data)
		if err != nil {
			logger.Fatal("parsing seed profiles", zap.Error(err))
		}

		a, err := newApplication(ctx, config, logger)
		if err != nil {
			logger.Fatal("building the application", zap.Error(err))
		}
		defer a.Close()

		saved, err := seedProfiles(ctx, a.store, a.embedder, profiles, logger)
		if err != nil {
			logger.Fatal("seeding profiles", zap.Error(err))
		}
		logger.Info("seeded profiles", zap.Int("count", saved))
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("file", "f", "", "yaml file with profiles. Default is the built-in demo set.")
}

func parseSeed(data []byte) ([]seedProfile, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var profiles []seedProfile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &profiles,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v.Get("profiles")); err != nil {
		return nil, fmt.Errorf("decode seed profiles: %w", err)
	}

	for i, p := range profiles {
		if p.PersonID == 0 {
			return nil, fmt.Errorf("seed profile #%d has no person-id", i+1)
		}
	}
	return profiles, nil
}

// seedProfiles saves every profile, embedding it when a provider is set.
// Embedding failures are logged and the profile is saved without a vector.
func seedProfiles(ctx context.Context, st store.Store, embedder ai.Embedder, profiles []seedProfile, logger *zap.Logger) (int, error) {
	for _, sp := range profiles {
		p := &profile.Profile{
			PersonID:    sp.PersonID,
			DisplayName: sp.Username,
			Language:    profile.NormalizeLanguage(sp.Language),
			Fields: profile.Fields{
				Affiliation: sp.Affiliation,
				Stage:       sp.Stage,
				Skills:      sp.Skills,
				Interests:   sp.Interests,
				Goals:       sp.Goals,
			},
		}

		if embedder != nil {
			vec, err := embedder.Embed(ctx, profile.EmbeddingText(p.Fields))
			switch {
			case errors.Is(err, ai.ErrProviderUnavailable):
				logger.Warn("saving seed profile without embedding", zap.Int64("person_id", p.PersonID), zap.Error(err))
			case err != nil:
				return 0, err
			default:
				p.Embedding = vec
			}
		}

		if err := st.Put(ctx, p); err != nil {
			return 0, fmt.Errorf("save profile %d: %w", p.PersonID, err)
		}
		logger.Debug("saved seed profile", zap.Int64("person_id", p.PersonID), zap.String("username", sp.Username))
	}
	return len(profiles), nil
}
