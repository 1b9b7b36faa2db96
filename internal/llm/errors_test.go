package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{context.DeadlineExceeded, ErrorKindTimeout},
		{errors.New("request timed out after 10s"), ErrorKindTimeout},
		{errors.New("Post \"https://api\": context deadline exceeded"), ErrorKindTimeout},
		{errors.New("504 Gateway Timeout"), ErrorKindTimeout},
		{errors.New("429 Too Many Requests"), ErrorKindQuotaExceeded},
		{errors.New("rate_limit_error: slow down"), ErrorKindQuotaExceeded},
		{errors.New("you exceeded your current quota"), ErrorKindQuotaExceeded},
		{errors.New("insufficient_quota"), ErrorKindQuotaExceeded},
		{errors.New("something unexpected"), ErrorKindUnknown},
		{nil, ErrorKindUnknown},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestProviderErrorWrapping(t *testing.T) {
	inner := errors.New("429 too many requests")
	perr := WrapProviderError("anthropic", inner)

	if perr.Kind != ErrorKindQuotaExceeded {
		t.Errorf("expected quota_exceeded, got %s", perr.Kind)
	}
	if !errors.Is(perr, inner) {
		t.Error("expected wrapped error to unwrap to the original")
	}

	var target *ProviderError
	wrapped := fmt.Errorf("attempt failed: %w", perr)
	if !errors.As(wrapped, &target) {
		t.Error("expected errors.As to find ProviderError")
	}
	if target.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", target.Provider)
	}
}

func TestGenerationErrorMessage(t *testing.T) {
	gerr := &GenerationError{Attempts: []GenerationAttempt{
		{ProviderID: "a", Reason: ErrorKindTimeout},
		{ProviderID: "b", Reason: ErrorKindInvalidResponse},
	}}
	if gerr.Error() != "all providers failed (2 attempts)" {
		t.Errorf("unexpected message: %s", gerr.Error())
	}
}
