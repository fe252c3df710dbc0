package llmbinding_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raskolnikoff/noesisnoema/llmbinding"
)

func TestStripThinkMarkers_RemovesClosedSpan(t *testing.T) {
	out := llmbinding.StripThinkMarkers("<think>internal musing</think>The answer is 42.")
	assert.Equal(t, "The answer is 42.", out)
}

func TestStripThinkMarkers_RemovesUnclosedTrailingSpan(t *testing.T) {
	out := llmbinding.StripThinkMarkers("Answer first.<think>trailing unterminated thought")
	assert.Equal(t, "Answer first.", out)
}

func TestStripThinkMarkers_NoMarkersPassesThrough(t *testing.T) {
	out := llmbinding.StripThinkMarkers("Plain answer.")
	assert.Equal(t, "Plain answer.", out)
}

func TestStripThinkMarkersBounded_TruncatesToCharBudget(t *testing.T) {
	out := llmbinding.StripThinkMarkersBounded("abcdefghij", llmbinding.ThinkFilterConfig{CharBudget: 5})
	assert.Equal(t, "abcde", out)
}

func TestStripThinkMarkersBounded_ZeroConfigIsUnbounded(t *testing.T) {
	long := "<think>x</think>" + "y"
	out := llmbinding.StripThinkMarkersBounded(long, llmbinding.ThinkFilterConfig{})
	assert.Equal(t, "y", out)
}

func TestStripThinkMarkersBounded_RespectsDeadline(t *testing.T) {
	out := llmbinding.StripThinkMarkersBounded("<think>x</think>answer", llmbinding.ThinkFilterConfig{Deadline: time.Second})
	assert.Equal(t, "answer", out)
}
