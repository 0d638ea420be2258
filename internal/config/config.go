// Package config loads address book settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds process-wide settings. Command-line flags override these.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `env:"ADDRESSBOOK_DB" envDefault:"addressbook.db"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"ADDRESSBOOK_LOG_LEVEL" envDefault:"info"`

	// LogFormat is text or json.
	LogFormat string `env:"ADDRESSBOOK_LOG_FORMAT" envDefault:"text"`
}

// Load reads Config from the environment, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
