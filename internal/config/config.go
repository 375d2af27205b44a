// Package config loads the healing engine's configuration.
//
// Layers are applied in increasing precedence:
//
//	built-in defaults < environment (.env via godotenv, then envconfig) < YAML file < programmatic override
//
// Each layer only overwrites fields it actually sets; a missing YAML file
// or absent env var simply leaves the previous layer's value in place.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/selectorheal/selectorheal/internal/domain"
)

// Option mutates a domain.Config after the env/file layers have been
// applied, implementing the "programmatic override" precedence tier.
type Option func(*domain.Config)

// WithEnabled overrides the master enable switch.
func WithEnabled(enabled bool) Option {
	return func(c *domain.Config) { c.Enabled = enabled }
}

// WithStrategies overrides the strategy dispatch order.
func WithStrategies(strategies ...string) Option {
	return func(c *domain.Config) { c.Strategies = strategies }
}

// WithMaxAttempts overrides the per-heal attempt cap.
func WithMaxAttempts(n int) Option {
	return func(c *domain.Config) { c.MaxAttempts = n }
}

// WithOllama overrides the LLM backend connection settings.
func WithOllama(ollama domain.OllamaConfig) Option {
	return func(c *domain.Config) { c.Ollama = ollama }
}

// Load builds a domain.Config from defaults, the environment (loading
// envPath via godotenv first, if it exists), and an optional YAML file at
// yamlPath, then applies opts. envPath and yamlPath may be empty to skip
// that layer.
func Load(envPath, yamlPath string, opts ...Option) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if yamlPath != "" {
		if err := applyYAMLFile(yamlPath, &cfg); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyYAMLFile merges yamlPath's contents onto cfg. A missing file is not
// an error; the preceding layers stand as-is.
func applyYAMLFile(path string, cfg *domain.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return domain.ErrConfigInvalid(fmt.Sprintf("parsing %s: %v", path, err))
	}
	return nil
}
