// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	APIKey     string
	LogLevel   slog.Level
	LogFormat  string

	GitHub   GitHubConfig
	LLM      LLMConfig
	Database *DBConfig
	Storage  StorageConfig
	Jobs     JobsConfig
}

// GitHubConfig identifies the repository under review and the credential
// used to act on it.
type GitHubConfig struct {
	Token string
	Owner string
	Repo  string
}

// LLMConfig selects and configures the review backend.
type LLMConfig struct {
	Provider           string
	GeminiAPIKey       string
	OllamaHost         string
	GeneratorModelName string
}

// DBConfig holds the Postgres connection settings shared by the
// idempotency store, the outcome records, and the message queue.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// StorageConfig locates the durable review store.
type StorageConfig struct {
	// Dir is the root under which reviews/<yyyy>/<mm>/<dd>/... is written.
	Dir string
}

// JobsConfig tunes the review pipeline and its queue.
type JobsConfig struct {
	MaxWorkers int
	// JobTimeout bounds one complete review job run.
	JobTimeout time.Duration
	// MarkerTTL is the staleness bound after which an in-progress
	// idempotency marker counts as abandoned and may be reclaimed.
	MarkerTTL time.Duration
	// MaxDeliveryAttempts is the broker-level redelivery bound before a
	// message moves to the dead-letter queue.
	MaxDeliveryAttempts int
	PollInterval        time.Duration
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LLM_PROVIDER", "ollama")
	viper.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	viper.SetDefault("GENERATOR_MODEL_NAME", "gemma3:latest")
	viper.SetDefault("STORAGE_DIR", "data")
	viper.SetDefault("MAX_WORKERS", 4)
	viper.SetDefault("JOB_TIMEOUT", "9m")
	viper.SetDefault("MARKER_TTL", "9m")
	viper.SetDefault("MAX_DELIVERY_ATTEMPTS", 5)
	viper.SetDefault("QUEUE_POLL_INTERVAL", "5s")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "warden")
	viper.SetDefault("DB_NAME", "regression_warden")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Debug("no .env config file, relying on environment", "error", err)
		}
	}

	if viper.GetString("API_KEY") == "" {
		return nil, fmt.Errorf("API_KEY must be set")
	}
	if viper.GetString("GITHUB_TOKEN") == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN must be set")
	}
	if viper.GetString("GITHUB_OWNER") == "" || viper.GetString("GITHUB_REPO") == "" {
		return nil, fmt.Errorf("GITHUB_OWNER and GITHUB_REPO must be set")
	}

	// Special handling for the Gemini generator model name.
	generatorModel := viper.GetString("GENERATOR_MODEL_NAME")
	if viper.GetString("LLM_PROVIDER") == "gemini" {
		geminiModel := viper.GetString("GEMINI_GENERATOR_MODEL_NAME")
		if geminiModel != "" {
			generatorModel = geminiModel
		} else {
			generatorModel = "gemini-2.5-pro"
		}
	}

	return &Config{
		ServerPort: viper.GetString("SERVER_PORT"),
		APIKey:     viper.GetString("API_KEY"),
		LogLevel:   parseLogLevel(viper.GetString("LOG_LEVEL")),
		LogFormat:  viper.GetString("LOG_FORMAT"),
		GitHub: GitHubConfig{
			Token: viper.GetString("GITHUB_TOKEN"),
			Owner: viper.GetString("GITHUB_OWNER"),
			Repo:  viper.GetString("GITHUB_REPO"),
		},
		LLM: LLMConfig{
			Provider:           viper.GetString("LLM_PROVIDER"),
			GeminiAPIKey:       viper.GetString("GEMINI_API_KEY"),
			OllamaHost:         viper.GetString("OLLAMA_HOST"),
			GeneratorModelName: generatorModel,
		},
		Database: &DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Storage: StorageConfig{
			Dir: viper.GetString("STORAGE_DIR"),
		},
		Jobs: JobsConfig{
			MaxWorkers:          viper.GetInt("MAX_WORKERS"),
			JobTimeout:          viper.GetDuration("JOB_TIMEOUT"),
			MarkerTTL:           viper.GetDuration("MARKER_TTL"),
			MaxDeliveryAttempts: viper.GetInt("MAX_DELIVERY_ATTEMPTS"),
			PollInterval:        viper.GetDuration("QUEUE_POLL_INTERVAL"),
		},
	}, nil
}

// parseLogLevel maps the config string onto a slog.Level.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		slog.Warn("unrecognized log level, defaulting to info", "provided", s)
		return slog.LevelInfo
	}
}
