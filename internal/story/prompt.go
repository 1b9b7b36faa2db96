package story

import (
	"fmt"
	"strings"

	"github.com/didgugoluke/liminal-transit/internal/tokens"
)

// PromptConfig bounds prompt construction.
type PromptConfig struct {
	KeepRecentBeats int // Recent beats kept verbatim (default 8)
	TokenBudget     int // Upper bound on prompt tokens (default 2000, 0 = default)
}

// DefaultPromptConfig returns the standard prompt bounds.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		KeepRecentBeats: 8,
		TokenBudget:     2000,
	}
}

func (cfg PromptConfig) withDefaults() PromptConfig {
	if cfg.KeepRecentBeats <= 0 {
		cfg.KeepRecentBeats = 8
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 2000
	}
	return cfg
}

// BuildPrompt renders a context into the generation prompt. Deterministic and
// pure: the same context always yields the same string.
//
// Layout: the seed is always kept, the most recent KeepRecentBeats beats are
// rendered verbatim, and any middle beats are collapsed into a one-line digest
// (DerivedSummary when present). If the result still exceeds TokenBudget,
// verbatim beats are folded into the digest oldest-first until it fits.
func BuildPrompt(c StoryContext, cfg PromptConfig) string {
	cfg = cfg.withDefaults()

	keep := cfg.KeepRecentBeats
	if keep > len(c.History) {
		keep = len(c.History)
	}
	elided := c.History[:len(c.History)-keep]
	recent := c.History[len(c.History)-keep:]

	prompt := render(c, elided, recent)
	for tokens.Estimate(prompt) > cfg.TokenBudget && len(recent) > 1 {
		// Fold the oldest verbatim beat into the elided digest
		elided = c.History[:len(elided)+1]
		recent = recent[1:]
		prompt = render(c, elided, recent)
	}
	return prompt
}

func render(c StoryContext, elided, recent []StoryBeat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Story seed: %s\n", c.Seed)

	if len(elided) > 0 {
		summary := c.DerivedSummary
		if summary == "" {
			summary = ElidedDigest(elided)
		}
		fmt.Fprintf(&b, "\nEarlier in the story (%d beats): %s\n", len(elided), summary)
	}

	for _, beat := range recent {
		fmt.Fprintf(&b, "\n> %s\n%s\n", beat.Choice, beat.NarrativeText)
	}

	return b.String()
}

// ElidedDigest produces a deterministic one-line digest of dropped beats:
// the sequence of choices taken and the opening words of the last elided beat.
// No model call is involved, which keeps BuildPrompt pure and idempotent.
func ElidedDigest(beats []StoryBeat) string {
	if len(beats) == 0 {
		return ""
	}

	choices := make([]string, len(beats))
	for i, beat := range beats {
		choices[i] = string(beat.Choice)
	}

	last := beats[len(beats)-1].NarrativeText
	words := strings.Fields(last)
	if len(words) > 12 {
		last = strings.Join(words[:12], " ") + "..."
	}

	return fmt.Sprintf("choices %s; most recently: %s", strings.Join(choices, ""), last)
}
