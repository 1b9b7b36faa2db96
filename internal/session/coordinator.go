// Package session provides the per-session state machine that ties story
// context to the failover router.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/didgugoluke/liminal-transit/internal/llm"
	logging "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/story"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateCreated        State = "created"
	StateAwaitingChoice State = "awaiting_choice"
	StateGenerating     State = "generating"
	StateCompleted      State = "completed"
)

// InvalidStateError reports an operation called outside its valid state.
// Caller error: nothing changes, the session stays usable.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not valid in state %s", e.Op, e.State)
}

// Hooks are the collaborator callbacks the coordinator drives.
type Hooks struct {
	// OnSessionUpdated is called exactly once per successful Choose, never on
	// failure or cancellation. An external store handles durability and retry.
	OnSessionUpdated func(ctx story.StoryContext)

	// OnAttempts receives the attempt sequence of each Choose call.
	// Fire-and-forget: a failing consumer never fails the operation.
	OnAttempts func(attempts []llm.GenerationAttempt)
}

// Config tunes a coordinator.
type Config struct {
	Prompt       story.PromptConfig
	SystemPrompt string
}

// DefaultSystemPrompt frames every generation request.
const DefaultSystemPrompt = "You are the narrator of an atmospheric interactive story. " +
	"Continue the story in one or two short sentences based on the traveler's choice, " +
	"then end with a binary question followed by \" (Y/N)\"."

// Coordinator owns exactly one StoryContext and serializes its mutations.
// At most one Choose may be in flight; a concurrent second call fails fast
// with InvalidStateError rather than queuing. Independent sessions run fully
// in parallel.
type Coordinator struct {
	id     string
	router *llm.Router
	cfg    Config
	hooks  Hooks

	mu    sync.Mutex
	state State
	sctx  story.StoryContext
}

// NewCoordinator creates a session in the Created state.
func NewCoordinator(router *llm.Router, cfg Config, hooks Hooks) *Coordinator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Coordinator{
		id:     uuid.NewString(),
		router: router,
		cfg:    cfg,
		hooks:  hooks,
		state:  StateCreated,
	}
}

// ID returns the session identifier.
func (s *Coordinator) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Coordinator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Context returns a snapshot of the story context.
func (s *Coordinator) Context() story.StoryContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sctx
}

// Start validates the seed and produces the initial context with empty
// history. Valid only in Created.
func (s *Coordinator) Start(seed string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return &InvalidStateError{Op: "start", State: s.state}
	}

	sctx, err := story.NewContext(seed)
	if err != nil {
		return err
	}

	s.sctx = sctx
	s.state = StateAwaitingChoice
	logging.L_info("session: started", "session", s.id, "seed", seed)
	return nil
}

// Choose resolves one binary choice: builds the prompt, routes it through the
// provider chain, and on success appends exactly one beat and fires the
// persistence hook. On exhaustion or cancellation the context is left deeply
// unchanged and the session returns to AwaitingChoice, so the caller may retry
// the same choice.
func (s *Coordinator) Choose(ctx context.Context, choice story.Choice) (story.StoryBeat, error) {
	if choice != story.ChoiceYes && choice != story.ChoiceNo {
		return story.StoryBeat{}, &story.ValidationError{Field: "choice", Reason: "must be Y or N"}
	}

	s.mu.Lock()
	if s.state != StateAwaitingChoice {
		state := s.state
		s.mu.Unlock()
		return story.StoryBeat{}, &InvalidStateError{Op: "choose", State: state}
	}
	s.state = StateGenerating
	snapshot := s.sctx
	s.mu.Unlock()

	prompt := story.BuildPrompt(snapshot, s.cfg.Prompt) +
		fmt.Sprintf("\nThe traveler chooses: %s\n", choice)

	result, err := s.router.Generate(ctx, prompt, s.cfg.SystemPrompt)
	s.emitAttempts(result)

	s.mu.Lock()
	if err != nil {
		// No partial mutation: previous context stays as-is.
		s.state = StateAwaitingChoice
		s.mu.Unlock()
		logging.L_warn("session: generation failed", "session", s.id, "error", err)
		return story.StoryBeat{}, err
	}

	beat := story.StoryBeat{
		Choice:        choice,
		NarrativeText: result.Response.Text,
		ProviderID:    result.ProviderID,
		Timestamp:     time.Now(),
	}
	s.sctx = snapshot.Append(beat)
	s.state = StateAwaitingChoice
	updated := s.sctx
	s.mu.Unlock()

	if s.hooks.OnSessionUpdated != nil {
		s.hooks.OnSessionUpdated(updated)
	}

	logging.L_info("session: beat appended", "session", s.id,
		"provider", result.ProviderID, "beats", len(updated.History))
	return beat, nil
}

// Complete is the explicit terminal transition. No further Choose calls are
// accepted afterwards.
func (s *Coordinator) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingChoice {
		return &InvalidStateError{Op: "complete", State: s.state}
	}
	s.state = StateCompleted
	logging.L_info("session: completed", "session", s.id, "beats", len(s.sctx.History))
	return nil
}

// emitAttempts hands the attempt sequence to the telemetry hook. A panicking
// consumer must never fail the user-facing operation.
func (s *Coordinator) emitAttempts(result *llm.RouteResult) {
	if s.hooks.OnAttempts == nil || result == nil || len(result.Attempts) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L_warn("session: telemetry hook panicked", "session", s.id, "panic", r)
		}
	}()
	s.hooks.OnAttempts(result.Attempts)
}
