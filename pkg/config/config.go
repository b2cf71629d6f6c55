// Package config loads the application configuration from a YAML file and
// environment variables. Environment variables take precedence over file
// values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/aide-dev/aide/pkg/background"
	"github.com/aide-dev/aide/pkg/checkpoint"
	"github.com/aide-dev/aide/pkg/compact"
)

// Config represents the application configuration.
type Config struct {
	Model       ModelConfig        `yaml:"model"`
	Engine      EngineConfig       `yaml:"engine"`
	Compactor   *compact.Config    `yaml:"compactor,omitempty"`
	Checkpoints *checkpoint.Config `yaml:"checkpoints,omitempty"`
	Background  *background.Config `yaml:"background,omitempty"`
	Log         LogConfig          `yaml:"log"`
}

// ModelConfig contains model and provider endpoint configuration.
type ModelConfig struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"baseUrl"`
	// APIKey is usually left empty in the file and supplied through the
	// AIDE_API_KEY environment variable.
	APIKey string `yaml:"apiKey,omitempty"`
}

// EngineConfig contains conversation engine settings.
type EngineConfig struct {
	// MaxIterations caps model round trips within one turn.
	MaxIterations int `yaml:"maxIterations"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	// File is the log file path; empty logs to stderr only.
	File string `yaml:"file,omitempty"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aide.yaml"
	}
	return filepath.Join(home, ".aide", "config.yaml")
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Model: ModelConfig{
			ID:      "glm-4.5-air",
			BaseURL: "https://api.z.ai/api/coding/paas/v4",
		},
		Engine:      EngineConfig{MaxIterations: 15},
		Compactor:   compact.DefaultConfig(),
		Checkpoints: checkpoint.DefaultConfig(),
		Background:  background.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(home, ".aide", "aide.log"),
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	if cfg.Engine.MaxIterations <= 0 {
		cfg.Engine.MaxIterations = 15
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AIDE_MODEL"); v != "" {
		cfg.Model.ID = v
	}
	if v := os.Getenv("AIDE_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("AIDE_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("AIDE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if n := envInt("AIDE_MAX_ITERATIONS"); n > 0 {
		cfg.Engine.MaxIterations = n
	}
	if n := envInt("AIDE_MAX_BACKGROUND_TASKS"); n > 0 {
		cfg.Background.MaxConcurrent = n
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ResolveAPIKey returns the API key from config or environment, failing
// loudly when neither is set.
func (c *Config) ResolveAPIKey() (string, error) {
	if c.Model.APIKey != "" {
		return c.Model.APIKey, nil
	}
	return "", errors.New("no API key configured: set AIDE_API_KEY or model.apiKey in the config file")
}
