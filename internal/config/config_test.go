package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	t.Setenv("API_KEY", "")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("GITHUB_REPO", "widgets")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Jobs.MaxWorkers)
	assert.Equal(t, 5, cfg.Jobs.MaxDeliveryAttempts)
	assert.Positive(t, cfg.Jobs.MarkerTTL)
	assert.Positive(t, cfg.Jobs.JobTimeout)
}
