package config

import (
	"stock-opportunity-engine/pkg/config"
)

// Screener holds screener-specific configuration.
type Screener struct {
	RulesPath       string `mapstructure:"rules_path"`
	PollingInterval string `mapstructure:"polling_interval"`
	StreamTimeout   string `mapstructure:"stream_timeout"`
}

// Config holds the full configuration for the screener service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Telegram config.Telegram `mapstructure:"telegram"`
	Screener Screener        `mapstructure:"screener"`
}

// Load loads the screener configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
