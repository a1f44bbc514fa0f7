package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/peermatch/internal/ai/gemini"
	"github.com/spigell/peermatch/internal/store/redisledger"
)

const (
	app = "peermatch"
)

type Config struct {
	Database  *DatabaseConfig  `mapstructure:"database"`
	Ledger    *LedgerConfig    `mapstructure:"ledger"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	Wizard    *struct {
		CommitTimeout time.Duration `mapstructure:"commit-timeout"`
	} `mapstructure:"wizard"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Metrics  *struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	// Driver is sqlite, postgres or memory.
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto-migrate"`
}

type LedgerConfig struct {
	// Type is database or redis.
	Type  string              `mapstructure:"type"`
	Redis *redisledger.Config `mapstructure:"redis"`
}

type EmbeddingConfig struct {
	Provider  string         `mapstructure:"provider"`
	CacheSize int            `mapstructure:"cache-size"`
	Gemini    *gemini.Config `mapstructure:"gemini"`
	Local     *struct {
		Dimension int `mapstructure:"dimension"`
	} `mapstructure:"local"`
}

type MatchingConfig struct {
	Threshold float64       `mapstructure:"threshold"`
	Limit     int           `mapstructure:"limit"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "peermatch pairs students with peers through a short profile wizard and semantic matching",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initConfig(cmd)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// a missing .env is fine
	_ = godotenv.Load()

	if err := viper.BindEnv("embedding.gemini.api-key-file", "PEERMATCH_GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding PEERMATCH_GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "peermatch.db")
	viper.SetDefault("database.auto-migrate", true)
	viper.SetDefault("ledger.type", "database")
	viper.SetDefault("embedding.provider", "gemini")
	viper.SetDefault("embedding.cache-size", 1024)
	viper.SetDefault("embedding.gemini.model", "text-embedding-004")
	viper.SetDefault("embedding.gemini.max-retries", 3)
	viper.SetDefault("wizard.commit-timeout", "20s")
	viper.SetDefault("matching.threshold", 0.1)
	viper.SetDefault("matching.cooldown", "1h")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is peermatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig(cmd *cobra.Command) {
	// version works without any config
	if cmd == versionCmd {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Defaults are enough when no config file exists, but a broken or
		// explicitly requested file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
