package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/embedding"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

func newStore(t *testing.T, texts ...string) *chunk.Store {
	t.Helper()
	emb := embedding.MustNewHashing(32, "test-model")
	s := chunk.NewStore(emb)
	s.AddTexts(texts, true)
	return s
}

func TestBM25_NoQueryTermYieldsZero(t *testing.T) {
	idx := retrieval.NewBM25Index(1.5, 0.75)
	idx.Build([]chunk.Chunk{{Content: "the quick brown fox"}})

	results := idx.TopN("nonexistent", 5)
	assert.Empty(t, results)
}

func TestBM25_ScoresNonNegative(t *testing.T) {
	idx := retrieval.NewBM25Index(1.5, 0.75)
	idx.Build([]chunk.Chunk{
		{Content: "swift programming language"},
		{Content: "banana bread recipe"},
	})

	for _, sd := range idx.TopN("swift programming", 5) {
		assert.GreaterOrEqual(t, sd.Score, 0.0)
	}
}

func TestMMR_ReturnsMinKAndCandidates(t *testing.T) {
	candidates := []chunk.Chunk{
		{Content: "a", Embedding: []float32{1, 0}},
		{Content: "b", Embedding: []float32{0.9, 0.1}},
	}
	selected := retrieval.MMR([]float32{1, 0}, candidates, 5, 0.7)
	assert.Len(t, selected, 2) // min(k, |candidates|)
}

func TestMMR_LowLambdaPrefersDiversity(t *testing.T) {
	query := []float32{1, 0}
	candidates := []chunk.Chunk{
		{Content: "dup1", Embedding: []float32{1, 0}},
		{Content: "dup2", Embedding: []float32{0.99, 0.01}},
		{Content: "dup3", Embedding: []float32{0.98, 0.02}},
		{Content: "dup4", Embedding: []float32{0.97, 0.03}},
		{Content: "dup5", Embedding: []float32{0.96, 0.04}},
		{Content: "outlier", Embedding: []float32{0, 1}},
	}

	selected := retrieval.MMR(query, candidates, 2, 0.1)
	contents := make([]string, len(selected))
	for i, c := range selected {
		contents[i] = c.Content
	}
	assert.Contains(t, contents, "outlier")
}

func TestMMR_HighLambdaPrefersRelevance(t *testing.T) {
	query := []float32{1, 0}
	candidates := []chunk.Chunk{
		{Content: "most-relevant", Embedding: []float32{1, 0}},
		{Content: "second-relevant", Embedding: []float32{0.9, 0.1}},
		{Content: "outlier", Embedding: []float32{0, 1}},
	}

	selected := retrieval.MMR(query, candidates, 2, 1.0)
	contents := []string{selected[0].Content, selected[1].Content}
	assert.ElementsMatch(t, []string{"most-relevant", "second-relevant"}, contents)
}

func TestHybridRetriever_EmptyStoreYieldsEmpty(t *testing.T) {
	store := newStore(t)
	hr := retrieval.NewHybridRetriever(store, retrieval.DefaultConfig(), nil)

	results := hr.Retrieve(context.Background(), "anything", 5, 0.7)
	assert.Empty(t, results)
}

func TestHybridRetriever_EmptyQueryYieldsEmpty(t *testing.T) {
	store := newStore(t, "swift programming language")
	hr := retrieval.NewHybridRetriever(store, retrieval.DefaultConfig(), nil)

	results := hr.Retrieve(context.Background(), "", 5, 0.7)
	assert.Empty(t, results)
}

func TestHybridRetriever_DuplicateSuppression(t *testing.T) {
	store := newStore(t,
		"Swift is a powerful programming language.",
		"Swift is a powerful programming language.",
		"Bananas are a good source of potassium.",
		"The weather today is sunny and warm.",
		"Go is a statically typed language.",
		"Coffee is best served hot.",
	)
	hr := retrieval.NewHybridRetriever(store, retrieval.DefaultConfig(), nil)

	results := hr.Retrieve(context.Background(), "swift programming", 4, 0.7)
	require.NotEmpty(t, results)

	seen := make(map[string]struct{})
	for _, r := range results {
		_, dup := seen[r.Chunk.Content]
		assert.False(t, dup, "duplicate content returned: %s", r.Chunk.Content)
		seen[r.Chunk.Content] = struct{}{}
	}
}
