// Package llm provides narrative provider implementations and utilities.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind categorizes provider errors for failover and telemetry decisions.
type ErrorKind string

const (
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
	ErrorKindQuotaExceeded   ErrorKind = "quota_exceeded"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// ProviderError wraps a single failed provider attempt. The router recovers
// from these internally by advancing to the next provider.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapProviderError classifies err and wraps it with provider identity.
func WrapProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: Classify(err), Err: err}
}

// GenerationAttempt records one provider tried during a routing decision.
// Transient: handed to the telemetry hook, never retained in story history.
type GenerationAttempt struct {
	ProviderID string
	StartedAt  time.Time
	Duration   time.Duration
	Success    bool
	Narrative  string    // Set on success
	Reason     ErrorKind // Set on failure
	Skipped    bool      // True if skipped due to cooldown (no network call)
}

// GenerationError is surfaced when every provider in the chain has failed.
// Fatal for the request only; the session and its context stay intact and the
// caller may retry the same choice.
type GenerationError struct {
	Attempts []GenerationAttempt
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("all providers failed (%d attempts)", len(e.Attempts))
}

// Classify determines the error kind from an error. SDK errors carry no stable
// typed taxonomy across backends, so this matches message substrings the same
// way each provider's HTTP layer phrases them.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	msg := strings.ToLower(err.Error())

	switch {
	case isTimeoutMessage(msg):
		return ErrorKindTimeout
	case isQuotaMessage(msg):
		return ErrorKindQuotaExceeded
	default:
		return ErrorKindUnknown
	}
}

func isTimeoutMessage(msg string) bool {
	if msg == "" {
		return false
	}
	// HTTP 408, 504
	if strings.Contains(msg, "408") || strings.Contains(msg, "504") {
		return true
	}
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset")
}

func isQuotaMessage(msg string) bool {
	if msg == "" {
		return false
	}
	// HTTP 429
	if strings.Contains(msg, "429") {
		return true
	}
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "exceeded your current quota") ||
		strings.Contains(msg, "insufficient_quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "usage limit")
}
