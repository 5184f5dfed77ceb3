// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/talgya/dynasty/internal/theme"
)

// Config is the runtime configuration of the dynasty simulator.
type Config struct {
	DBPath    string   `env:"DYNASTY_DB_PATH" envDefault:"data/dynasty.db"`
	Seed      int64    `env:"DYNASTY_SEED" envDefault:"42"`
	ThemePath string   `env:"DYNASTY_THEME"` // Empty uses the built-in feudal theme
	Houses    []string `env:"DYNASTY_HOUSES" envDefault:"Voss,Blackwood,Ironhand" envSeparator:","`
	Turns     int      `env:"DYNASTY_TURNS" envDefault:"200"` // Per dynasty; 0 runs until stopped
	APIPort   int      `env:"DYNASTY_API_PORT" envDefault:"8080"`
	AdminKey  string   `env:"DYNASTY_ADMIN_KEY"` // Bearer token for action submission; empty disables it

	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads and checks the process configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Houses) == 0 {
		return cfg, fmt.Errorf("DYNASTY_HOUSES names no house")
	}
	if cfg.Turns < 0 {
		return cfg, fmt.Errorf("DYNASTY_TURNS must not be negative, got %d", cfg.Turns)
	}
	return cfg, nil
}

// Theme loads the configured theme, or the built-in one.
func (c Config) Theme() (*theme.Config, error) {
	if c.ThemePath == "" {
		return theme.Default(), nil
	}
	return theme.Load(c.ThemePath)
}
