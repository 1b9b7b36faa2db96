// Package config loads the engine configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/didgugoluke/liminal-transit/internal/llm"
	logging "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/store"
)

// Config represents the merged engine configuration.
type Config struct {
	Log       LogConfig       `json:"log"`
	Providers []ProviderEntry `json:"providers"`
	Router    RouterConfig    `json:"router"`
	Story     StoryConfig     `json:"story"`
	Storage   store.Config    `json:"storage"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `json:"level"`
	ShowCaller bool   `json:"showCaller"`
}

// ProviderEntry is one named provider in the failover chain. List order
// breaks priority ties, so the array form matters.
type ProviderEntry struct {
	Name string `json:"name"`
	llm.ProviderConfig
}

// RouterConfig tunes the failover router.
type RouterConfig struct {
	AttemptTimeoutSeconds int `json:"attemptTimeoutSeconds"`
}

// StoryConfig bounds prompt construction.
type StoryConfig struct {
	KeepRecentBeats   int `json:"keepRecentBeats"`
	PromptTokenBudget int `json:"promptTokenBudget"`
}

// Default returns the built-in configuration: offline scripted provider,
// sqlite storage under the user's home directory.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{Level: "info"},
		Providers: []ProviderEntry{
			{
				Name: "scripted",
				ProviderConfig: llm.ProviderConfig{
					Type:     "scripted",
					Priority: 100,
				},
			},
		},
		Router: RouterConfig{AttemptTimeoutSeconds: 10},
		Story:  StoryConfig{KeepRecentBeats: 8, PromptTokenBudget: 2000},
		Storage: store.Config{
			Type: "sqlite",
			Path: filepath.Join(home, ".liminal", "sessions.db"),
		},
	}
}

// Load reads configuration from path, overlaying the defaults. A missing file
// is not an error; the defaults carry an offline-capable chain.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.L_debug("config: no file found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	logging.L_debug("config: loaded", "path", path, "providers", len(cfg.Providers))
	return cfg, nil
}

// BuildProviders constructs the provider chain from configuration. Providers
// that fail to construct (e.g. missing API key) are skipped with a warning so
// one misconfigured backend does not take the whole chain down.
func (c *Config) BuildProviders() ([]llm.ProviderDescriptor, error) {
	var descriptors []llm.ProviderDescriptor
	for _, entry := range c.Providers {
		provider, err := llm.NewProvider(entry.Name, entry.ProviderConfig)
		if err != nil {
			logging.L_warn("config: skipping provider", "name", entry.Name, "error", err)
			continue
		}
		descriptors = append(descriptors, llm.ProviderDescriptor{
			ID:          entry.Name,
			Priority:    entry.Priority,
			CostPerMTok: entry.CostPerMTok,
			Provider:    provider,
		})
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no usable providers configured")
	}
	return descriptors, nil
}
