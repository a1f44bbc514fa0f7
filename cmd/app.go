package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/ai"
	"github.com/spigell/peermatch/internal/ai/gemini"
	"github.com/spigell/peermatch/internal/ai/local"
	"github.com/spigell/peermatch/internal/bot"
	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/matching"
	"github.com/spigell/peermatch/internal/metrics"
	"github.com/spigell/peermatch/internal/ratelimit"
	"github.com/spigell/peermatch/internal/secrets"
	"github.com/spigell/peermatch/internal/store"
	"github.com/spigell/peermatch/internal/store/memory"
	"github.com/spigell/peermatch/internal/store/redisledger"
	"github.com/spigell/peermatch/internal/wizard"
)

// application holds the wired components shared by the commands.
type application struct {
	config   *Config
	logger   *zap.Logger
	store    store.Store
	ledger   store.Ledger
	embedder ai.Embedder
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	closers  []func() error
}

// setup creates the logger and reads the config the way every command needs them.
func setup() (*Config, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return config, logger
}

func redacted(config *Config) Config {
	out := *config
	if config.Embedding != nil && config.Embedding.Gemini != nil && config.Embedding.Gemini.APIKey != "" {
		embedding := *config.Embedding
		g := *config.Embedding.Gemini
		g.APIKey = "***"
		embedding.Gemini = &g
		out.Embedding = &embedding
	}
	return out
}

func newApplication(ctx context.Context, config *Config, logger *zap.Logger) (*application, error) {
	a := &application{
		config:   config,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}

	embedder, err := newEmbedder(ctx, config.Embedding, logger)
	if err != nil {
		// profiles are still saved, just without a vector until reembed runs
		logger.Warn("embedding provider is unavailable", zap.Error(err))
	} else {
		a.embedder = embedder
		logger.Info("embedding provider ready", zap.String("provider", embedder.Name()))
	}

	return a, nil
}

func (a *application) openStore(ctx context.Context) error {
	cfg := a.config.Database
	if cfg == nil {
		cfg = &DatabaseConfig{}
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "memory") {
		a.store = memory.NewStore()
		a.logger.Warn("using in-memory store, profiles are lost on exit")
		return nil
	}

	st, err := store.Open(cfg.Driver, cfg.DSN, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, st.Close)
	a.store = st

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *application) openLedger(ctx context.Context) error {
	cfg := a.config.Ledger
	if cfg == nil {
		cfg = &LedgerConfig{}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "database":
		ledger, ok := a.store.(store.Ledger)
		if !ok {
			return fmt.Errorf("store %T cannot keep rate limits", a.store)
		}
		a.ledger = ledger
		return nil
	case "redis":
		if cfg.Redis == nil {
			return fmt.Errorf("ledger.redis section is required for the redis ledger")
		}
		ledger, err := redisledger.New(ctx, *cfg.Redis, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ledger.Close)
		a.ledger = ledger
		return nil
	default:
		return fmt.Errorf("unsupported ledger type: %s", cfg.Type)
	}
}

func newEmbedder(ctx context.Context, cfg *EmbeddingConfig, logger *zap.Logger) (ai.Embedder, error) {
	if cfg == nil {
		cfg = &EmbeddingConfig{}
	}

	var inner ai.Embedder
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", gemini.ProviderName:
		geminiCfg := gemini.Config{}
		if cfg.Gemini != nil {
			geminiCfg = *cfg.Gemini
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  geminiCfg.APIKeyFile,
			Value: geminiCfg.APIKey,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set embedding.gemini.api-key-file, PEERMATCH_GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
		}

		embedder, err := gemini.NewEmbedder(ctx, apiKey, geminiCfg, logger)
		if err != nil {
			return nil, err
		}
		inner = embedder
	case local.ProviderName:
		dimension := 0
		if cfg.Local != nil {
			dimension = cfg.Local.Dimension
		}
		inner = local.NewEmbedder(dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	cached, err := ai.NewCached(inner, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return cached, nil
}

func (a *application) wizard() *wizard.Machine {
	opts := []wizard.Option{
		wizard.WithLogger(a.logger),
		wizard.WithMetrics(a.metrics),
	}
	if a.config.Wizard != nil {
		opts = append(opts, wizard.WithCommitTimeout(a.config.Wizard.CommitTimeout))
	}
	return wizard.New(a.store, a.embedder, opts...)
}

func (a *application) engine() *matching.Engine {
	opts := []matching.Option{
		matching.WithLogger(a.logger),
		matching.WithMetrics(a.metrics),
	}
	if cfg := a.config.Matching; cfg != nil {
		opts = append(opts, matching.WithThreshold(cfg.Threshold), matching.WithLimit(cfg.Limit))
	}
	return matching.New(a.store, opts...)
}

func (a *application) limiter() *ratelimit.Limiter {
	return ratelimit.New(a.ledger, a.logger)
}

func (a *application) cooldown() time.Duration {
	if a.config.Matching == nil || a.config.Matching.Cooldown <= 0 {
		return bot.DefaultMatchCooldown
	}
	return a.config.Matching.Cooldown
}

func (a *application) handler() *bot.Handler {
	return bot.NewHandler(a.store, a.wizard(), a.engine(), a.limiter(),
		bot.WithMatchCooldown(a.cooldown()),
		bot.WithLogger(a.logger),
		bot.WithMetrics(a.metrics),
	)
}

// serveMetrics starts the /metrics listener when an address is configured.
func (a *application) serveMetrics(ctx context.Context) {
	if a.config.Metrics == nil || strings.TrimSpace(a.config.Metrics.Addr) == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.config.Metrics.Addr, a.registry, a.logger); err != nil {
			a.logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resource", zap.Error(err))
		}
	}
}
