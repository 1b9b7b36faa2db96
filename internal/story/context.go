// Package story holds the story session data model and prompt construction.
// Everything here is pure data and transformation functions, no I/O.
package story

import (
	"fmt"
	"regexp"
	"time"
)

// Choice is one side of the binary decision every beat ends on.
type Choice string

const (
	ChoiceYes Choice = "Y"
	ChoiceNo  Choice = "N"
)

// ParseChoice normalizes user input to a Choice.
func ParseChoice(s string) (Choice, bool) {
	switch s {
	case "Y", "y":
		return ChoiceYes, true
	case "N", "n":
		return ChoiceNo, true
	}
	return "", false
}

// StoryBeat is one resolved choice-and-narrative unit. Immutable once appended.
type StoryBeat struct {
	Choice        Choice    `json:"choice"`
	NarrativeText string    `json:"narrativeText"`
	ProviderID    string    `json:"providerId"`
	Timestamp     time.Time `json:"timestamp"`
}

// StoryContext holds the ordered story history for one session.
// The seed is immutable once set; history is append-only during a session.
type StoryContext struct {
	Seed           string      `json:"seed"`
	History        []StoryBeat `json:"history"`
	DerivedSummary string      `json:"derivedSummary,omitempty"`
}

// seedRe is the allowed seed shape: alphanumeric, hyphen, underscore, 1-50 chars.
var seedRe = regexp.MustCompile(`^[a-zA-Z0-9-_]{1,50}$`)

// ValidationError reports user-correctable bad input. No state is changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateSeed checks the seed pattern without creating any state.
func ValidateSeed(seed string) error {
	if seed == "" {
		return &ValidationError{Field: "seed", Reason: "must not be empty"}
	}
	if len(seed) > 50 {
		return &ValidationError{Field: "seed", Reason: "must be at most 50 characters"}
	}
	if !seedRe.MatchString(seed) {
		return &ValidationError{Field: "seed", Reason: "only alphanumeric, hyphen and underscore allowed"}
	}
	return nil
}

// NewContext creates the initial context for a validated seed, empty history.
func NewContext(seed string) (StoryContext, error) {
	if err := ValidateSeed(seed); err != nil {
		return StoryContext{}, err
	}
	return StoryContext{Seed: seed}, nil
}

// Append returns a new StoryContext with the beat added. The receiver is not
// mutated and the history slice is copied, so the previous value stays valid
// even if the append is later discarded.
func (c StoryContext) Append(beat StoryBeat) StoryContext {
	history := make([]StoryBeat, len(c.History), len(c.History)+1)
	copy(history, c.History)
	return StoryContext{
		Seed:           c.Seed,
		History:        append(history, beat),
		DerivedSummary: c.DerivedSummary,
	}
}

// Equal reports deep equality of two contexts. Used to assert failure
// isolation: a failed generation must leave the context unchanged.
func (c StoryContext) Equal(other StoryContext) bool {
	if c.Seed != other.Seed || c.DerivedSummary != other.DerivedSummary {
		return false
	}
	if len(c.History) != len(other.History) {
		return false
	}
	for i := range c.History {
		if c.History[i] != other.History[i] {
			return false
		}
	}
	return true
}
