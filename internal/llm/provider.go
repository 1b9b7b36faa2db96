// Package llm provides unified narrative provider interfaces and implementations.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// Provider is the unified interface for all narrative-generation backends.
// Implementations: AnthropicProvider, OpenAIProvider, XAIProvider, ScriptedProvider
type Provider interface {
	// Identity
	Name() string  // Provider instance name (e.g., "anthropic", "lmstudio")
	Type() string  // Provider type (e.g., "anthropic", "openai", "xai", "scripted")
	Model() string // Current model name

	// Availability
	IsAvailable() bool // Ready to accept requests
	MaxTokens() int    // Output limit

	// Generate produces the next story beat for a prompt. The call is bound by
	// ctx; the router supplies a per-attempt timeout, adapters never block past it.
	Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error)

	// EstimateCost returns the cost in USD for a given token count,
	// based on the provider's configured per-million-token rate.
	EstimateCost(tokenCount int) float64
}

// Response represents a completed generation
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// ProviderConfig is the configuration for a single provider instance.
// API keys are explicit constructor input; there is no process-wide secret state.
type ProviderConfig struct {
	Type           string  `json:"type"`           // "anthropic", "openai", "xai", "scripted"
	Model          string  `json:"model"`          // Model name
	APIKey         string  `json:"apiKey"`         // For cloud providers
	APIKeyEnv      string  `json:"apiKeyEnv"`      // Env var to read the key from (preferred over inline)
	BaseURL        string  `json:"baseURL"`        // For OpenAI-compatible endpoints (LM Studio, OpenRouter)
	MaxTokens      int     `json:"maxTokens"`      // Output limit override
	TimeoutSeconds int     `json:"timeoutSeconds"` // Per-request timeout for the SDK client
	CostPerMTok    float64 `json:"costPerMTok"`    // Blended USD per 1M tokens, for cost accounting
	Priority       int     `json:"priority"`       // Failover order (lower = tried first)
}

// choicePromptRe matches the trailing choice marker every story beat must end
// with. The Y/N letters are case-insensitive, trailing whitespace is allowed.
var choicePromptRe = regexp.MustCompile(`(?i)\(y/n\)\s*$`)

// ValidateNarrative reports whether a generated beat has the minimal required
// shape: non-empty text ending with a "(Y/N)" choice prompt. Pure function,
// no side effects.
func ValidateNarrative(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return choicePromptRe.MatchString(text)
}
