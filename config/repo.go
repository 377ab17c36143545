package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RepoConfigName is the per-repository override file, found at the
// repository root.
const RepoConfigName = ".srcimport.yaml"

// RepoConfig carries per-repository overrides of the workflow
// configuration.
type RepoConfig struct {
	Filters     []string `yaml:"filters"`
	Compression string   `yaml:"compression"`
	Prefix      string   `yaml:"prefix"`
}

// LoadRepoConfig reads the override file from a repository root. A missing
// file is not an error and yields nil.
func LoadRepoConfig(repoPath string) (*RepoConfig, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, RepoConfigName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", RepoConfigName, err)
	}

	var rc RepoConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RepoConfigName, err)
	}
	return &rc, nil
}

// Apply merges repository overrides into the workflow configuration.
func (c *Config) Apply(rc *RepoConfig) {
	if rc == nil {
		return
	}
	if len(rc.Filters) > 0 {
		c.Filters = rc.Filters
	}
	if rc.Compression != "" {
		c.Compression.Type = rc.Compression
	}
	if rc.Prefix != "" {
		c.Prefix = rc.Prefix
	}
}
