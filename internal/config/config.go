// Package config loads the service configuration: a YAML file with
// environment-variable overrides. All product-tuned constants (cache
// policy, janitor timing) live here so deployments can adjust them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hikarilab/mentorchat/internal/convcache"
)

// Janitor holds the sweep schedule.
type Janitor struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Interval     time.Duration `yaml:"interval"`
}

// LLM configures the completion backend.
type LLM struct {
	Model            string   `yaml:"model"`
	MaxTokens        int      `yaml:"max_tokens"`
	APIKeys          []string `yaml:"api_keys"`
	MaxDailyRequests int      `yaml:"max_daily_requests"`
}

// Postgres configures the document store backend. An empty DSN selects the
// in-memory store.
type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Config is the full service configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	LogLevel   string           `yaml:"log_level"`
	PersonaDir string           `yaml:"persona_dir"`
	Postgres   Postgres         `yaml:"postgres"`
	LLM        LLM              `yaml:"llm"`
	Cache      convcache.Policy `yaml:"cache"`
	Janitor    Janitor          `yaml:"janitor"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:     ":8080",
		LogLevel:   "info",
		PersonaDir: "personas",
		LLM: LLM{
			Model:            "claude-sonnet-4-20250514",
			MaxTokens:        1024,
			MaxDailyRequests: 1500,
		},
		Cache: convcache.DefaultPolicy(),
		Janitor: Janitor{
			InitialDelay: 5 * time.Second,
			Interval:     15 * time.Minute,
		},
	}
}

// Load reads the configuration file (if path is non-empty), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MENTORCHAT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("MENTORCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MENTORCHAT_PERSONA_DIR"); v != "" {
		cfg.PersonaDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.LLM.APIKeys = keys
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.PersonaDir == "" {
		return fmt.Errorf("config: persona_dir is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("config: llm.max_tokens must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive")
	}
	if c.Cache.MaxMessages <= 0 || c.Cache.PruneTo <= 0 {
		return fmt.Errorf("config: cache caps must be positive")
	}
	if c.Cache.PruneTo > c.Cache.MaxMessages {
		return fmt.Errorf("config: cache.prune_to must not exceed cache.max_messages")
	}
	if c.Cache.TokenRatio <= 0 {
		return fmt.Errorf("config: cache.token_ratio must be positive")
	}
	if c.Janitor.Interval <= 0 {
		return fmt.Errorf("config: janitor.interval must be positive")
	}
	return nil
}
