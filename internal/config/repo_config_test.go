package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoConfig(t *testing.T) {
	data := []byte(`
custom_instructions:
  - "Focus on the public API surface."
ignore_paths:
  - "vendor/*"
  - "*.lock"
max_files: 40
`)

	cfg, err := ParseRepoConfig(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Focus on the public API surface."}, cfg.CustomInstructions)
	assert.Equal(t, 40, cfg.MaxFiles)

	assert.True(t, cfg.Ignored("vendor/lib.go"))
	assert.True(t, cfg.Ignored("deep/nested/Gemfile.lock"))
	assert.False(t, cfg.Ignored("internal/service.go"))
}

func TestParseRepoConfigMissing(t *testing.T) {
	cfg, err := ParseRepoConfig(nil)
	assert.ErrorIs(t, err, ErrConfigNotFound)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.IgnorePaths)
}

func TestParseRepoConfigInvalid(t *testing.T) {
	_, err := ParseRepoConfig([]byte("ignore_paths: {not: a list"))
	assert.ErrorIs(t, err, ErrConfigParsing)
}
