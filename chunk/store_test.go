package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/embedding"
)

func newTestStore(t *testing.T) *chunk.Store {
	t.Helper()
	emb := embedding.MustNewHashing(16, "test-model")
	return chunk.NewStore(emb)
}

func TestStore_AddDeduplicates(t *testing.T) {
	s := newTestStore(t)
	s.AddTexts([]string{"hello world", "hello world", "goodbye"}, true)

	require.Equal(t, 2, s.Stats().Count)
}

func TestStore_AddWithoutDedup(t *testing.T) {
	s := newTestStore(t)
	s.AddTexts([]string{"hello world", "hello world"}, false)

	require.Equal(t, 2, s.Stats().Count)
}

func TestStore_FindRelevant_OrdersByCosine(t *testing.T) {
	s := newTestStore(t)
	s.AddTexts([]string{"swift programming language", "banana bread recipe", "swift programming guide"}, true)

	results := s.RetrieveChunksFor("swift programming", 2)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Content, "swift")
	}
}

func TestStore_FindRelevant_DimensionMismatchFallback(t *testing.T) {
	s := newTestStore(t)
	s.Add([]chunk.Chunk{{Content: "a", Embedding: []float32{1, 2, 3}}}, true)

	results := s.FindRelevant([]float32{1, 2}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Content)
}

func TestStore_ReembedAllPreservesContent(t *testing.T) {
	s := newTestStore(t)
	s.AddTexts([]string{"alpha", "beta"}, true)
	before := s.All()

	s.ReembedAll()
	after := s.All()

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Content, after[i].Content)
	}
}

func TestStore_GenerationBumpsOnMutation(t *testing.T) {
	s := newTestStore(t)
	g0 := s.Generation()
	s.AddTexts([]string{"x"}, true)
	g1 := s.Generation()
	assert.Greater(t, g1, g0)

	s.Clear()
	g2 := s.Generation()
	assert.Greater(t, g2, g1)
}

func TestCosine_ZeroVectorIsZero(t *testing.T) {
	assert.Equal(t, 0.0, chunk.Cosine([]float32{0, 0, 0}, []float32{0, 0, 0}))
}

func TestCosine_IdenticalVectorsAreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, chunk.Cosine(v, v), 1e-9)
}
