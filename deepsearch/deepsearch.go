// Package deepsearch implements the multi-round expansion loop that mines
// salient terms from intermediate retrieval results to widen recall
// before a final MMR pass.
package deepsearch

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/raskolnikoff/noesisnoema/analyzer"
	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/queryiter"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

// Config holds DeepSearch's tunables. Zero values fall back to the
// documented defaults in DefaultConfig.
type Config struct {
	Rounds           int
	Breadth          int
	TopK             int
	SalientTermCount int
	MaxQueries       int
	MinTermLength    int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Rounds:           2,
		Breadth:          8,
		TopK:             5,
		SalientTermCount: 12,
		MaxQueries:       8,
		MinTermLength:    3,
	}
}

// Retriever is the subset of retrieval.HybridRetriever's surface DeepSearch
// needs, kept as an interface so tests can fake it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, mmrLambda float32) []retrieval.Candidate
}

// DeepSearch runs a multi-round query-expansion loop over a Retriever,
// mining expansion terms from each round's intermediate pool.
type DeepSearch struct {
	retriever Retriever
	cfg       Config
	store     *chunk.Store
}

// New builds a DeepSearch over retriever, using store to embed the
// original query for the final MMR pass.
func New(retriever Retriever, store *chunk.Store, cfg Config) *DeepSearch {
	def := DefaultConfig()
	if cfg.Rounds == 0 {
		cfg.Rounds = def.Rounds
	}
	if cfg.Breadth == 0 {
		cfg.Breadth = def.Breadth
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if cfg.SalientTermCount == 0 {
		cfg.SalientTermCount = def.SalientTermCount
	}
	if cfg.MaxQueries == 0 {
		cfg.MaxQueries = def.MaxQueries
	}
	if cfg.MinTermLength == 0 {
		cfg.MinTermLength = def.MinTermLength
	}
	return &DeepSearch{retriever: retriever, store: store, cfg: cfg}
}

// Run executes the full loop and returns the top_k chunks after the final
// MMR rerank against the original query's embedding.
func (d *DeepSearch) Run(ctx context.Context, query string, mmrLambda float32) []chunk.Chunk {
	if query == "" {
		return nil
	}

	queries := []string{queryiter.Normalize(query)}
	pool := make([]chunk.Chunk, 0, d.cfg.Breadth*d.cfg.Rounds)
	seen := make(map[string]struct{})

	for round := 0; round < d.cfg.Rounds; round++ {
		for _, q := range queries {
			for _, cand := range d.retriever.Retrieve(ctx, q, d.cfg.Breadth, mmrLambda) {
				if _, dup := seen[cand.Chunk.Content]; dup {
					continue
				}
				seen[cand.Chunk.Content] = struct{}{}
				pool = append(pool, cand.Chunk)
			}
		}

		if round < d.cfg.Rounds-1 {
			queries = d.expandQueries(queries, pool)
		}
	}

	queryEmbedding := d.store.Embed(query)
	return retrieval.MMR(queryEmbedding, pool, d.cfg.TopK, mmrLambda)
}

// expandQueries mines salient terms from the first Breadth pool members
// and merges single-token and adjacent-bigram expansions into the
// existing query list, preserving order and capping at MaxQueries.
func (d *DeepSearch) expandQueries(existing []string, pool []chunk.Chunk) []string {
	window := pool
	if len(window) > d.cfg.Breadth {
		window = window[:d.cfg.Breadth]
	}

	freq := make(map[string]int)
	firstSeenOrder := make(map[string]int)
	order := 0

	var chunkTokens [][]string
	for _, c := range window {
		tokens := analyzer.Tokenize(c.Content)
		chunkTokens = append(chunkTokens, tokens)

		unique := make(map[string]struct{})
		for _, t := range tokens {
			if len([]rune(t)) < d.cfg.MinTermLength || queryiter.IsStopword(t) {
				continue
			}
			unique[t] = struct{}{}
		}
		for t := range unique {
			if _, ok := firstSeenOrder[t]; !ok {
				firstSeenOrder[t] = order
				order++
			}
			freq[t]++
		}
	}

	terms := lo.Keys(freq)
	sort.SliceStable(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return firstSeenOrder[terms[i]] < firstSeenOrder[terms[j]]
	})
	if len(terms) > d.cfg.SalientTermCount {
		terms = terms[:d.cfg.SalientTermCount]
	}

	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}

	newQueries := make([]string, 0, len(terms)*2)
	newQueries = append(newQueries, terms...)

	seenBigram := make(map[string]struct{})
	for _, tokens := range chunkTokens {
		for i := 0; i+1 < len(tokens); i++ {
			a, b := tokens[i], tokens[i+1]
			if _, okA := termSet[a]; !okA {
				continue
			}
			if _, okB := termSet[b]; !okB {
				continue
			}
			bigram := a + " " + b
			if _, dup := seenBigram[bigram]; dup {
				continue
			}
			seenBigram[bigram] = struct{}{}
			newQueries = append(newQueries, bigram)
		}
	}

	merged := append([]string{}, existing...)
	mergedSet := make(map[string]struct{}, len(merged))
	for _, q := range merged {
		mergedSet[q] = struct{}{}
	}
	for _, q := range newQueries {
		if _, dup := mergedSet[q]; dup {
			continue
		}
		mergedSet[q] = struct{}{}
		merged = append(merged, q)
		if len(merged) >= d.cfg.MaxQueries {
			return merged
		}
	}
	return merged
}
