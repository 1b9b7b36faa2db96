// Package llm provides narrative provider implementations.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/didgugoluke/liminal-transit/internal/logging"
)

// safeInt32 converts int to int32 with bounds checking.
func safeInt32(n int) int32 {
	const maxInt32 = 1<<31 - 1
	if n > maxInt32 {
		return maxInt32
	}
	if n < 0 {
		return 0
	}
	return int32(n)
}

// XAIProvider implements the Provider interface for xAI's Grok API.
type XAIProvider struct {
	name        string
	config      ProviderConfig
	apiKey      string
	model       string
	maxTokens   int
	costPerMTok float64

	// Client management (lazy initialization)
	client   *xai.Client
	clientMu sync.Mutex
}

// NewXAIProvider creates an xAI provider from ProviderConfig.
// The client is created lazily on first Generate.
func NewXAIProvider(name string, cfg ProviderConfig) (*XAIProvider, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("xai API key not configured")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	L_debug("xai provider created", "name", name, "model", cfg.Model, "maxTokens", maxTokens)

	return &XAIProvider{
		name:        name,
		config:      cfg,
		apiKey:      apiKey,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		costPerMTok: cfg.CostPerMTok,
	}, nil
}

// getClient returns the xAI client, creating it on first use.
func (p *XAIProvider) getClient() (*xai.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	cfg := xai.Config{
		APIKey: xai.NewSecureString(p.apiKey),
	}
	if p.config.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(p.config.TimeoutSeconds) * time.Second
	}

	client, err := xai.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create xai client: %w", err)
	}

	p.client = client
	L_debug("xai client: initialized", "name", p.name)
	return p.client, nil
}

// Name returns the provider instance name
func (p *XAIProvider) Name() string { return p.name }

// Type returns the provider type
func (p *XAIProvider) Type() string { return "xai" }

// Model returns the configured model name
func (p *XAIProvider) Model() string { return p.model }

// IsAvailable returns true if the provider is configured and ready
func (p *XAIProvider) IsAvailable() bool {
	return p != nil && p.apiKey != "" && p.model != ""
}

// MaxTokens returns the current output limit
func (p *XAIProvider) MaxTokens() int { return p.maxTokens }

// EstimateCost returns the USD cost of tokenCount tokens at the configured rate.
func (p *XAIProvider) EstimateCost(tokenCount int) float64 {
	return float64(tokenCount) * p.costPerMTok / 1_000_000
}

// Generate sends the story prompt and returns the next beat.
func (p *XAIProvider) Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	req := xai.NewChatRequest().
		WithModel(p.model).
		WithMaxTokens(safeInt32(p.maxTokens))
	if systemPrompt != "" {
		req.SystemMessage(xai.SystemContent{Text: systemPrompt})
	}
	req.UserMessage(xai.UserContent{Text: prompt})

	L_debug("xai: sending request", "provider", p.name, "model", p.model)

	resp, err := client.CompleteChat(ctx, req)
	if err != nil {
		L_warn("xai: request failed", "provider", p.name, "error", err)
		return nil, err
	}

	response := &Response{
		Text:         resp.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}

	L_info("xai: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", response.InputTokens, "outputTokens", response.OutputTokens)

	return response, nil
}
