package deepsearch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/deepsearch"
	"github.com/raskolnikoff/noesisnoema/embedding"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

type fakeRetriever struct {
	byQuery map[string][]retrieval.Candidate
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int, _ float32) []retrieval.Candidate {
	cands := f.byQuery[query]
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands
}

func TestDeepSearch_Run_AccumulatesAndDedupsPool(t *testing.T) {
	emb := embedding.MustNewHashing(16, "test")
	store := chunk.NewStore(emb)
	store.AddTexts([]string{"swift programming language guide"}, true)

	fr := &fakeRetriever{byQuery: map[string][]retrieval.Candidate{
		"swift programming": {
			{Chunk: chunk.Chunk{Content: "swift programming language guide", Embedding: emb.Embed("swift programming language guide")}},
			{Chunk: chunk.Chunk{Content: "swift programming language guide", Embedding: emb.Embed("swift programming language guide")}},
		},
	}}

	ds := deepsearch.New(fr, store, deepsearch.Config{Rounds: 1, Breadth: 4, TopK: 5})
	results := ds.Run(context.Background(), "swift programming", 0.7)

	require.Len(t, results, 1)
	assert.Equal(t, "swift programming language guide", results[0].Content)
}

func TestDeepSearch_Run_EmptyQuery(t *testing.T) {
	emb := embedding.MustNewHashing(16, "test")
	store := chunk.NewStore(emb)
	fr := &fakeRetriever{byQuery: map[string][]retrieval.Candidate{}}

	ds := deepsearch.New(fr, store, deepsearch.DefaultConfig())
	assert.Empty(t, ds.Run(context.Background(), "", 0.7))
}
