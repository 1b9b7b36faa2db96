package story

import (
	"fmt"
	"strings"
	"testing"
)

func contextWithBeats(t *testing.T, n int) StoryContext {
	t.Helper()
	c, err := NewContext("test-seed")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		c = c.Append(StoryBeat{
			Choice:        ChoiceYes,
			NarrativeText: fmt.Sprintf("Beat number %d happens here. (Y/N)", i),
			ProviderID:    "scripted",
		})
	}
	return c
}

func TestBuildPromptIdempotent(t *testing.T) {
	c := contextWithBeats(t, 12)
	cfg := DefaultPromptConfig()

	first := BuildPrompt(c, cfg)
	second := BuildPrompt(c, cfg)
	if first != second {
		t.Error("BuildPrompt is not deterministic for the same context")
	}
}

func TestBuildPromptKeepsSeedAndRecent(t *testing.T) {
	c := contextWithBeats(t, 12)
	cfg := PromptConfig{KeepRecentBeats: 3, TokenBudget: 2000}

	prompt := BuildPrompt(c, cfg)

	if !strings.Contains(prompt, "Story seed: test-seed") {
		t.Error("prompt lost the seed")
	}
	// Last 3 beats verbatim
	for i := 9; i < 12; i++ {
		want := fmt.Sprintf("Beat number %d happens here. (Y/N)", i)
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing recent beat %d", i)
		}
	}
	// Middle beats elided
	if strings.Contains(prompt, "Beat number 2 happens here") {
		t.Error("prompt should not carry old beats verbatim")
	}
	if !strings.Contains(prompt, "Earlier in the story (9 beats)") {
		t.Error("prompt missing elision digest")
	}
}

func TestBuildPromptShortHistoryVerbatim(t *testing.T) {
	c := contextWithBeats(t, 3)
	prompt := BuildPrompt(c, DefaultPromptConfig())

	for i := 0; i < 3; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("Beat number %d", i)) {
			t.Errorf("short history should be fully verbatim, missing beat %d", i)
		}
	}
	if strings.Contains(prompt, "Earlier in the story") {
		t.Error("no digest expected when nothing is elided")
	}
}

func TestBuildPromptHonorsTokenBudget(t *testing.T) {
	c, _ := NewContext("budget-seed")
	long := strings.Repeat("the corridor stretches on and on ", 40) + "(Y/N)"
	for i := 0; i < 10; i++ {
		c = c.Append(StoryBeat{Choice: ChoiceNo, NarrativeText: long})
	}

	tight := BuildPrompt(c, PromptConfig{KeepRecentBeats: 8, TokenBudget: 400})
	loose := BuildPrompt(c, PromptConfig{KeepRecentBeats: 8, TokenBudget: 100000})

	if len(tight) >= len(loose) {
		t.Error("tight budget should fold beats into the digest")
	}
	if !strings.Contains(tight, "Story seed: budget-seed") {
		t.Error("seed must survive truncation")
	}
	// The newest beat is always kept verbatim
	if !strings.Contains(tight, long) {
		t.Error("most recent beat must stay verbatim")
	}
}

func TestBuildPromptUsesDerivedSummary(t *testing.T) {
	c := contextWithBeats(t, 12)
	c.DerivedSummary = "the traveler has said yes to everything"

	prompt := BuildPrompt(c, PromptConfig{KeepRecentBeats: 2, TokenBudget: 2000})
	if !strings.Contains(prompt, "the traveler has said yes to everything") {
		t.Error("derived summary should replace the computed digest")
	}
}

func TestElidedDigest(t *testing.T) {
	if ElidedDigest(nil) != "" {
		t.Error("empty input should yield empty digest")
	}

	beats := []StoryBeat{
		{Choice: ChoiceYes, NarrativeText: "First. (Y/N)"},
		{Choice: ChoiceNo, NarrativeText: "Second thing that happened here. (Y/N)"},
	}
	digest := ElidedDigest(beats)
	if !strings.Contains(digest, "choices YN") {
		t.Errorf("digest missing choice trail: %q", digest)
	}
	if !strings.Contains(digest, "Second thing") {
		t.Errorf("digest missing last beat opening: %q", digest)
	}

	if digest != ElidedDigest(beats) {
		t.Error("digest not deterministic")
	}
}
