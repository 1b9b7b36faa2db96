// Package llm provides the failover router that orchestrates narrative
// generation across an ordered provider chain.
package llm

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	. "github.com/didgugoluke/liminal-transit/internal/logging"
)

// DefaultAttemptTimeout bounds a single provider call when no override is set.
const DefaultAttemptTimeout = 10 * time.Second

// ProviderDescriptor is the static, read-only configuration for one entry in
// the failover chain. Loaded once at process start, never mutated at runtime.
type ProviderDescriptor struct {
	ID           string
	Priority     int // Lower = tried first
	Capabilities []string
	CostPerMTok  float64
	Provider     Provider
}

// RouterConfig tunes router behavior.
type RouterConfig struct {
	AttemptTimeout time.Duration // Per-provider timeout (0 = DefaultAttemptTimeout)
}

// providerCooldown tracks backoff state for a provider after failures
type providerCooldown struct {
	until      time.Time
	errorCount int // Consecutive error count (for exponential backoff)
	reason     ErrorKind
}

// Router tries providers strictly in ascending priority order, one at a time,
// until a response validates or the chain is exhausted. Equal priorities keep
// configuration order. Safe for concurrent use by independent sessions.
type Router struct {
	descriptors    []ProviderDescriptor
	attemptTimeout time.Duration

	cooldowns  map[string]*providerCooldown
	cooldownMu sync.RWMutex
}

// RouteResult is the outcome of one routing decision. Attempts is always
// populated (one record per provider tried), even when the chain failed.
type RouteResult struct {
	Response   *Response
	ProviderID string
	FailedOver bool // True if not the primary provider
	Attempts   []GenerationAttempt
}

// NewRouter creates a router over a provider chain. The descriptor slice is
// copied and stable-sorted by priority so the caller's configuration order
// breaks ties.
func NewRouter(descriptors []ProviderDescriptor, cfg RouterConfig) *Router {
	descs := make([]ProviderDescriptor, len(descriptors))
	copy(descs, descriptors)
	sort.SliceStable(descs, func(i, j int) bool {
		return descs[i].Priority < descs[j].Priority
	})

	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	L_info("router: created", "providers", len(descs), "attemptTimeout", timeout)

	return &Router{
		descriptors:    descs,
		attemptTimeout: timeout,
		cooldowns:      make(map[string]*providerCooldown),
	}
}

// Providers returns the chain in attempt order.
func (r *Router) Providers() []ProviderDescriptor {
	out := make([]ProviderDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Generate runs one routing decision: Idle -> Attempting(i) -> Succeeded or
// Exhausted. A response is accepted only if it validates; an invalid but
// non-erroring response fails that provider and the router advances without
// retrying it. On exhaustion the returned error is a *GenerationError and the
// result still carries the attempt records for telemetry.
func (r *Router) Generate(ctx context.Context, prompt, systemPrompt string) (*RouteResult, error) {
	result := &RouteResult{
		Attempts: make([]GenerationAttempt, 0, len(r.descriptors)),
	}

	if len(r.descriptors) == 0 {
		return result, &GenerationError{}
	}
	primary := r.descriptors[0].ID

	for _, desc := range r.descriptors {
		if err := ctx.Err(); err != nil {
			// Caller cancelled: stop routing, surface as-is.
			return result, err
		}

		if desc.Provider == nil || !desc.Provider.IsAvailable() {
			L_debug("router: provider unavailable, skipping", "provider", desc.ID)
			continue
		}

		// Cooldown check: skip without a network call
		if r.inCooldown(desc.ID) {
			result.Attempts = append(result.Attempts, GenerationAttempt{
				ProviderID: desc.ID,
				StartedAt:  time.Now(),
				Skipped:    true,
			})
			L_debug("router: provider in cooldown, skipping", "provider", desc.ID)
			continue
		}

		attempt := GenerationAttempt{
			ProviderID: desc.ID,
			StartedAt:  time.Now(),
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		resp, err := desc.Provider.Generate(attemptCtx, prompt, systemPrompt)
		cancel()
		attempt.Duration = time.Since(attempt.StartedAt)

		// Distinguish caller cancellation from a per-attempt timeout: the
		// former aborts the whole routing decision with no beat recorded.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return result, ctx.Err()
		}

		if err != nil {
			perr := WrapProviderError(desc.ID, err)
			attempt.Reason = perr.Kind
			result.Attempts = append(result.Attempts, attempt)
			r.markCooldown(desc.ID, perr.Kind)
			L_warn("router: attempt failed, advancing",
				"provider", desc.ID, "kind", perr.Kind, "error", err)
			continue
		}

		if !ValidateNarrative(resp.Text) {
			attempt.Reason = ErrorKindInvalidResponse
			result.Attempts = append(result.Attempts, attempt)
			L_warn("router: response failed validation, advancing",
				"provider", desc.ID, "length", len(resp.Text))
			continue
		}

		// Accepted
		attempt.Success = true
		attempt.Narrative = resp.Text
		result.Attempts = append(result.Attempts, attempt)
		result.Response = resp
		result.ProviderID = desc.ID
		result.FailedOver = desc.ID != primary
		r.clearCooldown(desc.ID)

		if result.FailedOver {
			L_info("router: using fallback provider", "provider", desc.ID, "primary", primary)
		}
		return result, nil
	}

	L_warn("router: all providers failed", "attempts", len(result.Attempts))
	return result, &GenerationError{Attempts: result.Attempts}
}

// ==================== Provider Cooldown Management ====================

// cooldownDuration returns the backoff for a failure count and kind.
// Quota: 5min -> 10min -> 20min, capped at 1hr.
// Other: 30s -> 2.5min -> 12.5min, capped at 10min.
func cooldownDuration(errorCount int, kind ErrorKind) time.Duration {
	if errorCount < 1 {
		errorCount = 1
	}

	if kind == ErrorKindQuotaExceeded {
		base := 5 * time.Minute
		maxDur := time.Hour
		exponent := min(errorCount-1, 3)
		dur := time.Duration(float64(base) * math.Pow(2, float64(exponent)))
		if dur > maxDur {
			return maxDur
		}
		return dur
	}

	base := 30 * time.Second
	maxDur := 10 * time.Minute
	exponent := min(errorCount-1, 3)
	dur := time.Duration(float64(base) * math.Pow(5, float64(exponent)))
	if dur > maxDur {
		return maxDur
	}
	return dur
}

func (r *Router) inCooldown(id string) bool {
	r.cooldownMu.RLock()
	defer r.cooldownMu.RUnlock()

	cd := r.cooldowns[id]
	return cd != nil && time.Now().Before(cd.until)
}

func (r *Router) markCooldown(id string, kind ErrorKind) {
	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	cd := r.cooldowns[id]
	if cd == nil {
		cd = &providerCooldown{}
		r.cooldowns[id] = cd
	}

	cd.errorCount++
	cd.reason = kind
	cd.until = time.Now().Add(cooldownDuration(cd.errorCount, kind))

	L_warn("router: provider cooldown",
		"provider", id,
		"until", cd.until.Format("15:04:05"),
		"reason", kind,
		"errorCount", cd.errorCount)
}

func (r *Router) clearCooldown(id string) {
	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	if _, ok := r.cooldowns[id]; ok {
		delete(r.cooldowns, id)
		L_info("router: provider cooldown cleared", "provider", id)
	}
}

// ClearAllCooldowns removes all provider cooldowns. Returns the number cleared.
func (r *Router) ClearAllCooldowns() int {
	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	count := len(r.cooldowns)
	r.cooldowns = make(map[string]*providerCooldown)
	return count
}
