package citation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/citation"
)

func TestBuildContext_NumbersFromOne(t *testing.T) {
	chunks := []chunk.Chunk{
		{Content: "first passage"},
		{Content: "second passage"},
	}
	ctx := citation.BuildContext(chunks)

	assert.Contains(t, ctx, "[1] first passage")
	assert.Contains(t, ctx, "[2] second passage")
	assert.Contains(t, ctx, "CITATION LABELS:")
}

func TestBuildContext_ClipsLongContent(t *testing.T) {
	long := strings.Repeat("a", citation.PerChunkLimit+50)
	ctx := citation.BuildContext([]chunk.Chunk{{Content: long}})
	assert.Contains(t, ctx, "…")
}

func TestEnforceCitations_LeavesAlreadyCitedParagraph(t *testing.T) {
	answer := "Swift is great. [1]"
	out := citation.EnforceCitations(answer, 2)
	assert.Equal(t, answer, out)
}

func TestEnforceCitations_AppendsInteriorLabelsToEnd(t *testing.T) {
	answer := "Swift [1] is a modern language used widely."
	out := citation.EnforceCitations(answer, 2)
	assert.True(t, strings.HasSuffix(out, "[1]"))
}

func TestEnforceCitations_FallsBackToLabelOneWhenNoneFound(t *testing.T) {
	answer := "This paragraph cites nothing at all."
	out := citation.EnforceCitations(answer, 3)
	assert.True(t, strings.HasSuffix(out, "[1]"))
}

func TestEnforceCitations_HandlesMultipleParagraphs(t *testing.T) {
	answer := "First para no cite.\n\nSecond para. [2]"
	out := citation.EnforceCitations(answer, 2)
	paras := strings.Split(out, "\n\n")
	require := assert.New(t)
	require.Len(paras, 2)
	require.True(strings.HasSuffix(paras[0], "[1]"))
	require.True(strings.HasSuffix(paras[1], "[2]"))
}

func TestEstimateTokens_NonEmptyTextHasPositiveCount(t *testing.T) {
	assert.Greater(t, citation.EstimateTokens("hello world, this is a test"), 0)
}

func TestBuildContextWithBudget_DropsChunksToFitBudget(t *testing.T) {
	chunks := []chunk.Chunk{
		{Content: strings.Repeat("alpha ", 200)},
		{Content: strings.Repeat("beta ", 200)},
		{Content: strings.Repeat("gamma ", 200)},
	}
	block, n := citation.BuildContextWithBudget(chunks, 50)
	assert.Equal(t, 1, n)
	assert.Contains(t, block, "[1]")
	assert.NotContains(t, block, "[2]")
}

func TestBuildContextWithBudget_ZeroBudgetIncludesAll(t *testing.T) {
	chunks := []chunk.Chunk{{Content: "a"}, {Content: "b"}}
	block, n := citation.BuildContextWithBudget(chunks, 0)
	assert.Equal(t, 2, n)
	assert.Contains(t, block, "[2]")
}

func TestEnforceCitations_IgnoresOutOfRangeLabels(t *testing.T) {
	answer := "Cites an invalid label. [99]"
	out := citation.EnforceCitations(answer, 2)
	assert.True(t, strings.HasSuffix(out, "[1]"))
}
