// Package config holds all tutord configuration.
// Each concern (LLM, embedding, cache, session, memory, quota) has its own
// file with its config struct and defaults; this file ties them together
// and handles loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all tutord configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Data directory (SQLite database, logs, audit trail)
	DataDir string `yaml:"data_dir"`

	// Generation providers (small/large)
	LLM LLMConfig `yaml:"llm"`

	// Embedding gateway
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Answer caches and tier routing
	Cache CacheConfig `yaml:"cache"`

	// Conversation context building
	Session SessionConfig `yaml:"session"`

	// Memory ledger
	Memory MemoryConfig `yaml:"memory"`

	// Quota enforcement
	Quota QuotaConfig `yaml:"quota"`

	// Fast store (Redis)
	FastStore FastStoreConfig `yaml:"fast_store"`

	// Intent classification
	Intent IntentConfig `yaml:"intent"`

	// Pipeline concurrency
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// PipelineConfig bounds turn-level concurrency.
type PipelineConfig struct {
	// Max simultaneous generation provider calls (sized to provider rate limits)
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// Max time a turn waits for a provider call slot
	SlotAcquireTimeout string `yaml:"slot_acquire_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tutord",
		Version: "1.0.0",
		DataDir: "data",

		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Cache:     DefaultCacheConfig(),
		Session:   DefaultSessionConfig(),
		Memory:    DefaultMemoryConfig(),
		Quota:     DefaultQuotaConfig(),
		FastStore: DefaultFastStoreConfig(),
		Intent:    DefaultIntentConfig(),

		Pipeline: PipelineConfig{
			MaxConcurrentCalls: 8,
			SlotAcquireTimeout: "2m",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// Returns defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them to the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TUTORD_LLM_API_KEY"); v != "" {
		c.LLM.Small.APIKey = v
		c.LLM.Large.APIKey = v
	}
	if v := os.Getenv("TUTORD_LLM_SMALL_API_KEY"); v != "" {
		c.LLM.Small.APIKey = v
	}
	if v := os.Getenv("TUTORD_LLM_LARGE_API_KEY"); v != "" {
		c.LLM.Large.APIKey = v
	}
	if v := os.Getenv("TUTORD_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("TUTORD_REDIS_ADDR"); v != "" {
		c.FastStore.Addr = v
	}
	if v := os.Getenv("TUTORD_REDIS_PASSWORD"); v != "" {
		c.FastStore.Password = v
	}
	if v := os.Getenv("TUTORD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}
