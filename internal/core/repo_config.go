package core

import (
	"path"
	"strings"
)

// RepoConfig represents the structure of the .regression-warden.yml file
// that a repository may carry at its root to tune its own reviews.
type RepoConfig struct {
	// Custom instructions appended to the review prompt.
	CustomInstructions []string `yaml:"custom_instructions"`

	// Glob patterns for paths excluded from the review prompt.
	// Example: ["vendor/*", "*.lock", "dist/*"]
	IgnorePaths []string `yaml:"ignore_paths"`

	// Hard cap on the number of changed files included in one prompt.
	// Zero means no cap.
	MaxFiles int `yaml:"max_files"`
}

// DefaultRepoConfig returns a config with default values.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		CustomInstructions: []string{},
		IgnorePaths:        []string{},
	}
}

// Ignored reports whether filePath matches any of the configured ignore
// globs. Patterns match the full path or its basename, so "*.lock"
// excludes lock files anywhere in the tree; a pattern ending in "/*"
// excludes the whole directory subtree, so "vendor/*" covers nested files.
func (c *RepoConfig) Ignored(filePath string) bool {
	filePath = strings.TrimPrefix(filePath, "/")
	for _, pattern := range c.IgnorePaths {
		if ok, err := path.Match(pattern, filePath); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, path.Base(filePath)); err == nil && ok {
			return true
		}
		if dir, found := strings.CutSuffix(pattern, "/*"); found {
			if strings.HasPrefix(filePath, dir+"/") {
				return true
			}
		}
	}
	return false
}
