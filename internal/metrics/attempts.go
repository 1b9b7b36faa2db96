package metrics

import (
	"github.com/didgugoluke/liminal-transit/internal/llm"
	. "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/tokens"
)

// AttemptRecorder consumes the GenerationAttempt sequences the coordinator
// emits and turns them into per-provider metrics and cost accounting. It is
// wired to the OnAttempts hook; failures here never reach the caller.
type AttemptRecorder struct {
	costPerMTok map[string]float64 // provider id -> USD per 1M tokens
}

// NewAttemptRecorder builds a recorder from the configured provider chain.
func NewAttemptRecorder(descriptors []llm.ProviderDescriptor) *AttemptRecorder {
	costs := make(map[string]float64, len(descriptors))
	for _, d := range descriptors {
		costs[d.ID] = d.CostPerMTok
	}
	return &AttemptRecorder{costPerMTok: costs}
}

// Record ingests one attempt sequence. Suitable for use as Hooks.OnAttempts.
func (r *AttemptRecorder) Record(attempts []llm.GenerationAttempt) {
	for _, attempt := range attempts {
		topic := "router/" + attempt.ProviderID

		switch {
		case attempt.Skipped:
			MetricAdd(topic, "skipped", 1)
		case attempt.Success:
			MetricSuccess(topic, "request")
			MetricDuration(topic, "request", attempt.Duration)

			// Cost accounting: estimate from narrative tokens at the
			// descriptor's configured rate, in microdollars.
			if rate, ok := r.costPerMTok[attempt.ProviderID]; ok && rate > 0 {
				tokenCount := tokens.Estimate(attempt.Narrative)
				microUSD := int64(float64(tokenCount) * rate) // rate/1e6 * 1e6
				MetricAdd(topic, "cost_micro_usd", microUSD)
				L_debug("telemetry: attempt cost",
					"provider", attempt.ProviderID,
					"tokens", tokenCount,
					"microUSD", microUSD)
			}
		default:
			MetricFailWithReason(topic, "request", string(attempt.Reason))
			MetricDuration(topic, "request", attempt.Duration)
		}
	}
	MetricAdd("router", "decisions", 1)
}
