package retrieval

import (
	"math"
	"sort"
	"sync"

	"github.com/raskolnikoff/noesisnoema/analyzer"
	"github.com/raskolnikoff/noesisnoema/chunk"
)

// ScoredDoc pairs a chunk index (into the slice the index was built from)
// with its BM25 score for one query.
type ScoredDoc struct {
	Index int
	Score float64
}

type bm25Doc struct {
	termFreq map[string]int
	length   int
}

// BM25Index is a lexical ranking index over a fixed snapshot of chunks.
// It caches per-document term frequencies, document frequencies, and the
// average document length, so that scoring many query variants against
// the same snapshot only pays tokenization cost once per document.
//
// BM25Index is not safe for concurrent Build calls; HybridRetriever
// guards rebuilds with its own lock and treats the index as read-only
// once built.
type BM25Index struct {
	mu    sync.RWMutex
	docs  []bm25Doc
	df    map[string]int
	n     int
	avgdl float64
	k1    float64
	b     float64
}

// NewBM25Index constructs an index with the given k1/b tuning constants.
func NewBM25Index(k1, b float64) *BM25Index {
	return &BM25Index{k1: k1, b: b}
}

// Build (re)computes the index over chunks, replacing any prior contents.
func (idx *BM25Index) Build(chunks []chunk.Chunk) {
	docs := make([]bm25Doc, len(chunks))
	df := make(map[string]int)
	var totalLen int

	for i, c := range chunks {
		tokens := analyzer.Tokenize(c.Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		docs[i] = bm25Doc{termFreq: tf, length: len(tokens)}
		totalLen += len(tokens)

		for term := range tf {
			df[term]++
		}
	}

	avgdl := 0.0
	if len(docs) > 0 {
		avgdl = float64(totalLen) / float64(len(docs))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = docs
	idx.df = df
	idx.n = len(docs)
	idx.avgdl = avgdl
}

// score computes the BM25 score of one document against a set of already
// tokenized query terms. idx.mu must be held for reading by the caller.
func (idx *BM25Index) score(queryTokens []string, docIdx int) float64 {
	doc := idx.docs[docIdx]
	if doc.length == 0 || idx.avgdl == 0 {
		return 0
	}

	var total float64
	for _, term := range queryTokens {
		f := float64(doc.termFreq[term])
		if f == 0 {
			continue
		}
		n := float64(idx.df[term])
		idf := math.Log((float64(idx.n)-n+0.5)/(n+0.5) + 1)
		denom := f + idx.k1*(1-idx.b+idx.b*float64(doc.length)/idx.avgdl)
		total += idf * (f * (idx.k1 + 1)) / denom
	}
	return total
}

// TopN returns up to n documents with non-zero BM25 score for query,
// sorted by descending score, ties broken by document index (insertion
// order). The returned indices refer to the positions in the chunk slice
// passed to the most recent Build call.
func (idx *BM25Index) TopN(query string, n int) []ScoredDoc {
	if n <= 0 {
		return nil
	}

	tokens := analyzer.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scored := make([]ScoredDoc, 0, idx.n)
	for i := range idx.docs {
		s := idx.score(tokens, i)
		if s <= 0 {
			continue
		}
		scored = append(scored, ScoredDoc{Index: i, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})

	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
