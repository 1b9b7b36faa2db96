// Package llm provides narrative provider implementations.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/didgugoluke/liminal-transit/internal/logging"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	name        string
	client      *anthropic.Client
	model       string
	maxTokens   int
	costPerMTok float64
}

// NewAnthropicProvider creates an Anthropic provider from ProviderConfig.
func NewAnthropicProvider(name string, cfg ProviderConfig) (*AnthropicProvider, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	L_debug("anthropic provider created", "name", name, "model", cfg.Model, "maxTokens", maxTokens)

	return &AnthropicProvider{
		name:        name,
		client:      &client,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		costPerMTok: cfg.CostPerMTok,
	}, nil
}

// Name returns the provider instance name
func (p *AnthropicProvider) Name() string { return p.name }

// Type returns the provider type
func (p *AnthropicProvider) Type() string { return "anthropic" }

// Model returns the configured model name
func (p *AnthropicProvider) Model() string { return p.model }

// IsAvailable returns true if the provider is configured and ready
func (p *AnthropicProvider) IsAvailable() bool {
	return p != nil && p.client != nil && p.model != ""
}

// MaxTokens returns the current output limit
func (p *AnthropicProvider) MaxTokens() int { return p.maxTokens }

// EstimateCost returns the USD cost of tokenCount tokens at the configured rate.
func (p *AnthropicProvider) EstimateCost(tokenCount int) float64 {
	return float64(tokenCount) * p.costPerMTok / 1_000_000
}

// Generate sends the story prompt and returns the next beat.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	startTime := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	L_debug("anthropic: sending request", "provider", p.name, "model", p.model)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		L_warn("anthropic: request failed", "provider", p.name, "error", err)
		return nil, err
	}

	response := &Response{
		StopReason:   string(message.StopReason),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			response.Text += variant.Text
		}
	}

	L_info("anthropic: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", response.InputTokens, "outputTokens", response.OutputTokens)

	return response, nil
}
