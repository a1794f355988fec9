package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/regression-warden/internal/core"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParsing  = errors.New("config parsing failed")
)

// ParseRepoConfig parses the .regression-warden.yml content fetched from a
// repository's PR head. A nil or empty payload means the repo carries no
// config and yields defaults with ErrConfigNotFound so callers can log it.
func ParseRepoConfig(data []byte) (*core.RepoConfig, error) {
	if len(data) == 0 {
		return core.DefaultRepoConfig(), ErrConfigNotFound
	}

	config := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return config, nil
}
