// Package llm provides narrative provider implementations.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/didgugoluke/liminal-transit/internal/logging"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs.
// Works with OpenAI, LM Studio, OpenRouter, and other compatible APIs via BaseURL.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	baseURL     string
	costPerMTok float64
}

// NewOpenAIProvider creates an OpenAI-compatible provider from ProviderConfig.
// API key is optional for local servers like LM Studio.
func NewOpenAIProvider(name string, cfg ProviderConfig) (*OpenAIProvider, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		apiKey = "not-needed" // Placeholder for local servers that don't require auth
	}

	config := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL != "" {
		// OpenAI-compatible APIs expect the /v1 suffix
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}
	if cfg.TimeoutSeconds > 0 {
		config.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	client := openai.NewClientWithConfig(config)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	L_debug("openai provider created", "name", name, "model", cfg.Model, "baseURL", baseURL, "maxTokens", maxTokens)

	return &OpenAIProvider{
		name:        name,
		client:      client,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		baseURL:     baseURL,
		costPerMTok: cfg.CostPerMTok,
	}, nil
}

// Name returns the provider instance name
func (p *OpenAIProvider) Name() string { return p.name }

// Type returns the provider type
func (p *OpenAIProvider) Type() string { return "openai" }

// Model returns the configured model name
func (p *OpenAIProvider) Model() string { return p.model }

// IsAvailable returns true if the provider is configured and ready
func (p *OpenAIProvider) IsAvailable() bool {
	return p != nil && p.client != nil && p.model != ""
}

// MaxTokens returns the current output limit
func (p *OpenAIProvider) MaxTokens() int { return p.maxTokens }

// EstimateCost returns the USD cost of tokenCount tokens at the configured rate.
func (p *OpenAIProvider) EstimateCost(tokenCount int) float64 {
	return float64(tokenCount) * p.costPerMTok / 1_000_000
}

// Generate sends the story prompt and returns the next beat.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	startTime := time.Now()

	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}

	L_debug("openai: sending request", "provider", p.name, "model", p.model, "baseURL", p.baseURL)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		L_warn("openai: request failed", "provider", p.name, "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response (no choices)")
	}

	choice := resp.Choices[0]
	response := &Response{
		Text:         choice.Message.Content,
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	L_info("openai: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", response.InputTokens, "outputTokens", response.OutputTokens)

	return response, nil
}
