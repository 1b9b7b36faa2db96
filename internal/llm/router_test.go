package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProvider is a scriptable in-memory backend for router tests.
type fakeProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) Type() string               { return "fake" }
func (f *fakeProvider) Model() string              { return "fake-1" }
func (f *fakeProvider) IsAvailable() bool          { return true }
func (f *fakeProvider) MaxTokens() int             { return 256 }
func (f *fakeProvider) EstimateCost(n int) float64 { return 0 }

func (f *fakeProvider) Generate(ctx context.Context, prompt, systemPrompt string) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.text, StopReason: "end_turn"}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func descriptorsFor(providers ...*fakeProvider) []ProviderDescriptor {
	descs := make([]ProviderDescriptor, len(providers))
	for i, p := range providers {
		descs[i] = ProviderDescriptor{ID: p.name, Priority: i + 1, Provider: p}
	}
	return descs
}

func TestRouterPriorityOrdering(t *testing.T) {
	// Configured with priorities [2,1,3]: priority 1 must be tried first.
	failing := errors.New("503 service overloaded")
	p2 := &fakeProvider{name: "second", err: failing}
	p1 := &fakeProvider{name: "first", err: failing}
	p3 := &fakeProvider{name: "third", err: failing}

	router := NewRouter([]ProviderDescriptor{
		{ID: "second", Priority: 2, Provider: p2},
		{ID: "first", Priority: 1, Provider: p1},
		{ID: "third", Priority: 3, Provider: p3},
	}, RouterConfig{})

	result, err := router.Generate(context.Background(), "prompt", "")
	if err == nil {
		t.Fatal("expected exhaustion error")
	}

	want := []string{"first", "second", "third"}
	if len(result.Attempts) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(result.Attempts))
	}
	for i, id := range want {
		if result.Attempts[i].ProviderID != id {
			t.Errorf("attempt %d: got %s, want %s", i, result.Attempts[i].ProviderID, id)
		}
	}
}

func TestRouterStableTieBreak(t *testing.T) {
	// Equal priority: configuration list order wins.
	failing := errors.New("unavailable")
	pa := &fakeProvider{name: "alpha", err: failing}
	pb := &fakeProvider{name: "beta", err: failing}

	router := NewRouter([]ProviderDescriptor{
		{ID: "alpha", Priority: 1, Provider: pa},
		{ID: "beta", Priority: 1, Provider: pb},
	}, RouterConfig{})

	result, _ := router.Generate(context.Background(), "prompt", "")
	if result.Attempts[0].ProviderID != "alpha" || result.Attempts[1].ProviderID != "beta" {
		t.Errorf("tie not broken by list order: %v", result.Attempts)
	}
}

func TestRouterSuccessOnPrimary(t *testing.T) {
	p := &fakeProvider{name: "only", text: "It was dark. (Y/N)"}
	router := NewRouter(descriptorsFor(p), RouterConfig{})

	result, err := router.Generate(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response.Text != "It was dark. (Y/N)" {
		t.Errorf("unexpected text: %q", result.Response.Text)
	}
	if result.FailedOver {
		t.Error("primary success should not be marked as failover")
	}
	if len(result.Attempts) != 1 || !result.Attempts[0].Success {
		t.Errorf("expected one successful attempt, got %+v", result.Attempts)
	}
}

func TestRouterInvalidResponseAdvances(t *testing.T) {
	// Invalid-but-non-erroring response fails that provider; no same-provider retry.
	bad := &fakeProvider{name: "bad", text: "no choice marker here"}
	good := &fakeProvider{name: "good", text: "A light ahead. Approach? (Y/N)"}
	router := NewRouter(descriptorsFor(bad, good), RouterConfig{})

	result, err := router.Generate(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderID != "good" {
		t.Errorf("expected good provider, got %s", result.ProviderID)
	}
	if !result.FailedOver {
		t.Error("expected failover flag")
	}
	if bad.callCount() != 1 {
		t.Errorf("invalid provider must not be retried, called %d times", bad.callCount())
	}
	if result.Attempts[0].Reason != ErrorKindInvalidResponse {
		t.Errorf("expected invalid_response, got %s", result.Attempts[0].Reason)
	}
}

func TestRouterTimeoutAdvances(t *testing.T) {
	slow := &fakeProvider{name: "slow", text: "too late (Y/N)", delay: 200 * time.Millisecond}
	fast := &fakeProvider{name: "fast", text: "Just in time. Continue? (Y/N)"}
	router := NewRouter(descriptorsFor(slow, fast), RouterConfig{AttemptTimeout: 20 * time.Millisecond})

	result, err := router.Generate(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderID != "fast" {
		t.Errorf("expected fast provider, got %s", result.ProviderID)
	}
	if result.Attempts[0].Reason != ErrorKindTimeout {
		t.Errorf("expected timeout reason, got %s", result.Attempts[0].Reason)
	}
}

func TestRouterExhaustion(t *testing.T) {
	p1 := &fakeProvider{name: "one", err: errors.New("boom")}
	p2 := &fakeProvider{name: "two", text: "missing marker"}
	router := NewRouter(descriptorsFor(p1, p2), RouterConfig{})

	result, err := router.Generate(context.Background(), "prompt", "")

	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if len(gerr.Attempts) != 2 {
		t.Errorf("expected 2 attempts in error, got %d", len(gerr.Attempts))
	}
	if result.Response != nil {
		t.Error("exhausted result must carry no response")
	}
}

func TestRouterCooldownSkips(t *testing.T) {
	quota := &fakeProvider{name: "quota", err: errors.New("429 too many requests")}
	backup := &fakeProvider{name: "backup", text: "The road forks. Left? (Y/N)"}
	router := NewRouter(descriptorsFor(quota, backup), RouterConfig{})

	if _, err := router.Generate(context.Background(), "prompt", ""); err != nil {
		t.Fatalf("first request should fail over: %v", err)
	}

	// Second request: quota provider is cooling down, skipped without a call.
	result, err := router.Generate(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quota.callCount() != 1 {
		t.Errorf("cooled provider should not be called again, calls=%d", quota.callCount())
	}
	if !result.Attempts[0].Skipped {
		t.Errorf("expected first attempt marked skipped, got %+v", result.Attempts[0])
	}
}

func TestRouterCallerCancellation(t *testing.T) {
	blocked := &fakeProvider{name: "blocked", text: "never (Y/N)", delay: time.Minute}
	router := NewRouter(descriptorsFor(blocked), RouterConfig{AttemptTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := router.Generate(ctx, "prompt", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCooldownDurationGrowth(t *testing.T) {
	first := cooldownDuration(1, ErrorKindTimeout)
	second := cooldownDuration(2, ErrorKindTimeout)
	if second <= first {
		t.Errorf("expected backoff growth: %v then %v", first, second)
	}

	quota := cooldownDuration(1, ErrorKindQuotaExceeded)
	if quota <= first {
		t.Errorf("quota cooldown should exceed generic cooldown: %v vs %v", quota, first)
	}
	if d := cooldownDuration(10, ErrorKindQuotaExceeded); d > time.Hour {
		t.Errorf("quota cooldown exceeds cap: %v", d)
	}
}
