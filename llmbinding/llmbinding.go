// Package llmbinding specifies the contract the core calls to produce a
// completion from a prompt, and the defensive filtering applied to raw
// model output before it is trusted.
package llmbinding

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// SamplingParams are the generation parameters recognized by a Binding.
type SamplingParams struct {
	Temperature  float32
	TopK         uint32
	TopP         float32
	MaxNewTokens uint32
	Stop         []string
}

// Binding is the contract an LLM binding must satisfy: run a completion
// on a prompt, honoring cancellation. Implementations must strip or
// filter internal-monologue markers (e.g. <think>...</think>) from their
// output before returning it.
type Binding interface {
	Complete(ctx context.Context, prompt string, params SamplingParams) (string, error)
}

var thinkTagPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// openThinkTagPattern matches an unclosed <think> to end of string, a
// defensive case for truncated model output.
var openThinkTagPattern = regexp.MustCompile(`(?is)<think>.*$`)

// StripThinkMarkers removes <think>...</think> spans (and any unclosed
// trailing <think> run-on) from raw model output. It is applied
// defensively by the core even when the binding is trusted to have
// already done so.
func StripThinkMarkers(raw string) string {
	stripped := thinkTagPattern.ReplaceAllString(raw, "")
	stripped = openThinkTagPattern.ReplaceAllString(stripped, "")
	return strings.TrimSpace(stripped)
}

// ThinkFilterConfig bounds the cost of defensively filtering untrusted,
// potentially adversarial model output. Zero values mean "unbounded" —
// the spec names no default budget or deadline, so none is invented here.
type ThinkFilterConfig struct {
	// CharBudget caps how many runes of raw output are scanned; 0 means
	// no cap.
	CharBudget int
	// Deadline caps how long filtering may run before it gives up and
	// returns the (possibly unfiltered) truncated input; 0 means no cap.
	Deadline time.Duration
}

// StripThinkMarkersBounded applies StripThinkMarkers under cfg's budget
// and deadline. If raw exceeds CharBudget, it is truncated first. If
// filtering does not complete within Deadline, the truncated-but-
// unfiltered input is returned rather than blocking indefinitely.
func StripThinkMarkersBounded(raw string, cfg ThinkFilterConfig) string {
	if cfg.CharBudget > 0 {
		runes := []rune(raw)
		if len(runes) > cfg.CharBudget {
			raw = string(runes[:cfg.CharBudget])
		}
	}

	if cfg.Deadline <= 0 {
		return StripThinkMarkers(raw)
	}

	done := make(chan string, 1)
	go func() { done <- StripThinkMarkers(raw) }()

	select {
	case out := <-done:
		return out
	case <-time.After(cfg.Deadline):
		return strings.TrimSpace(raw)
	}
}
