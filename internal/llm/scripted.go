// Package llm provides narrative provider implementations.
package llm

import (
	"context"
	"hash/fnv"
)

// scriptedBeats is the built-in narrative corpus for offline play. Every
// fragment ends with the choice prompt the validator requires.
var scriptedBeats = []string{
	"The bus sighs to a stop where no stop exists. Through the fogged glass, a figure waits under a flickering lamp. Step off? (Y/N)",
	"A folded note rests on the empty seat beside you, your name written in handwriting you almost recognize. Open it? (Y/N)",
	"The corridor narrows and the hum of fluorescent light grows louder. A door on the left stands ajar. Go through? (Y/N)",
	"Rain starts without warning. The stranger offers half of their umbrella and says nothing. Accept? (Y/N)",
	"The radio crackles into a voice reading coordinates, slowly, as if for you alone. Write them down? (Y/N)",
	"At the counter, the clerk slides a key across the glass. Room 9, same as your ticket stub. Take it? (Y/N)",
	"The platform clock has stopped at the exact minute you arrived. A second train is boarding. Board it? (Y/N)",
	"Someone has left the terminal door propped open with a paperback, spine cracked at the final chapter. Pick it up? (Y/N)",
}

// ScriptedProvider is a deterministic offline backend. It needs no network or
// credentials and always validates, which makes it the terminal entry of a
// failover chain and the default for local demos.
type ScriptedProvider struct {
	name        string
	costPerMTok float64
}

// NewScriptedProvider creates a scripted provider from ProviderConfig.
func NewScriptedProvider(name string, cfg ProviderConfig) (*ScriptedProvider, error) {
	return &ScriptedProvider{name: name, costPerMTok: cfg.CostPerMTok}, nil
}

// Name returns the provider instance name
func (p *ScriptedProvider) Name() string { return p.name }

// Type returns the provider type
func (p *ScriptedProvider) Type() string { return "scripted" }

// Model returns the corpus identifier
func (p *ScriptedProvider) Model() string { return "scripted-v1" }

// IsAvailable always returns true
func (p *ScriptedProvider) IsAvailable() bool { return p != nil }

// MaxTokens returns a nominal output limit
func (p *ScriptedProvider) MaxTokens() int { return 256 }

// EstimateCost returns the USD cost of tokenCount tokens. Usually zero.
func (p *ScriptedProvider) EstimateCost(tokenCount int) float64 {
	return float64(tokenCount) * p.costPerMTok / 1_000_000
}

// Generate picks a beat deterministically from the prompt, so identical
// prompts replay identical stories.
func (p *ScriptedProvider) Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New32a()
	h.Write([]byte(prompt))
	text := scriptedBeats[int(h.Sum32())%len(scriptedBeats)]

	return &Response{
		Text:         text,
		StopReason:   "end_turn",
		InputTokens:  len(prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}
