// Package config loads and validates the import workflow configuration.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the workflow configuration.
type Config struct {
	// UpstreamBranch is the branch upstream imports land on.
	UpstreamBranch string `mapstructure:"upstreamBranch" validate:"required"`
	// OrigDir is where pristine upstream archives are kept.
	OrigDir string `mapstructure:"origDir" validate:"required"`
	// Filters are passed through to the archive tools verbatim.
	Filters []string `mapstructure:"filters"`
	// Prefix overrides the path prefix inside generated archives. Empty
	// means derive it from the output name.
	Prefix string `mapstructure:"prefix"`

	Compression CompressionConfig `mapstructure:"compression"`
	Download    DownloadConfig    `mapstructure:"download"`
}

// CompressionConfig selects the external compressor for generated archives.
type CompressionConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=gzip bzip2 lzma xz"`
	// Level is the compression level; nil means the tool default.
	Level *int `mapstructure:"level" validate:"omitempty,min=0,max=9"`
}

// DownloadConfig bounds archive downloads.
type DownloadConfig struct {
	TimeoutSeconds int   `mapstructure:"timeoutSeconds" validate:"min=0"`
	MaxFileSize    int64 `mapstructure:"maxFileSize" validate:"min=0"`
}

// ConfigManager interface
type ConfigManager interface {
	LoadAndValidateConfig() (*Config, error)
}

// configManager implementation
type configManager struct {
	validator      *validator.Validate
	configFilePath string
}

// NewConfigManager creates a new ConfigManager
func NewConfigManager(completeFilePath string) ConfigManager {
	return &configManager{
		validator:      validator.New(),
		configFilePath: completeFilePath,
	}
}

// LoadAndValidateConfig loads the configuration file, fills in defaults and
// validates the result.
func (cm *configManager) LoadAndValidateConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cm.configFilePath)
	v.AutomaticEnv()

	v.SetDefault("upstreamBranch", "upstream")
	v.SetDefault("origDir", "../tarballs")
	v.SetDefault("compression.type", "gzip")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cm.validator.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
