// Package llm - Provider factory
package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a provider instance from config.
// Dispatches to the appropriate constructor based on cfg.Type.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(name, cfg)
	case "openai":
		return NewOpenAIProvider(name, cfg)
	case "xai":
		return NewXAIProvider(name, cfg)
	case "scripted":
		return NewScriptedProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// resolveAPIKey returns the API key for a provider config, preferring an
// environment variable reference over an inline key.
func resolveAPIKey(cfg ProviderConfig) string {
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			return key
		}
	}
	return cfg.APIKey
}
