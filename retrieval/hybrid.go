// Package retrieval implements the two-stage hybrid retriever: BM25
// lexical scoring and dense embedding similarity, unioned across query
// variants and reranked with Maximal Marginal Relevance.
package retrieval

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/queryiter"
)

// Config holds HybridRetriever's tunables. Zero numeric values fall back
// to the documented defaults in NewHybridRetriever; EnableQueryIteration
// is used as given, so a zero Config runs without query variants.
type Config struct {
	K1                   float64
	B                    float64
	StageCandidates      int
	MMRLambda            float32
	TopK                 int
	EnableQueryIteration bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		K1:                   1.5,
		B:                    0.75,
		StageCandidates:      12,
		MMRLambda:            0.7,
		TopK:                 5,
		EnableQueryIteration: true,
	}
}

// Candidate is a chunk annotated with the scores that produced it, so
// downstream rerankers don't need to recompute BM25/cosine from scratch.
type Candidate struct {
	Chunk      chunk.Chunk
	BM25Score  float64
	DenseScore float64
}

// HybridRetriever combines BM25 and dense retrieval over a chunk.Store,
// expanding the query into variants, unioning candidates, and selecting
// the final set with MMR. Safe for concurrent use: each Retrieve call
// takes a consistent snapshot of the store.
type HybridRetriever struct {
	store *chunk.Store
	cfg   Config
	log   *slog.Logger

	mu         sync.Mutex
	bm25       *BM25Index
	bm25Chunks []chunk.Chunk
	generation uint64
}

// NewHybridRetriever builds a retriever over store. Zero-valued numeric
// fields in cfg are replaced by DefaultConfig's values;
// EnableQueryIteration is kept as passed.
func NewHybridRetriever(store *chunk.Store, cfg Config, log *slog.Logger) *HybridRetriever {
	def := DefaultConfig()
	if cfg.K1 == 0 {
		cfg.K1 = def.K1
	}
	if cfg.B == 0 {
		cfg.B = def.B
	}
	if cfg.StageCandidates == 0 {
		cfg.StageCandidates = def.StageCandidates
	}
	if cfg.MMRLambda == 0 {
		cfg.MMRLambda = def.MMRLambda
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if log == nil {
		log = slog.Default()
	}

	return &HybridRetriever{
		store: store,
		cfg:   cfg,
		log:   log,
		bm25:  NewBM25Index(cfg.K1, cfg.B),
	}
}

// ensureBM25 rebuilds the BM25 index if the store has mutated since the
// last build, per §9's optimization note: cache DF/avgdl per generation.
func (h *HybridRetriever) ensureBM25() []chunk.Chunk {
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := h.store.Generation()
	if gen == h.generation && h.bm25Chunks != nil {
		return h.bm25Chunks
	}

	chunks := h.store.All()
	h.bm25.Build(chunks)
	h.bm25Chunks = chunks
	h.generation = gen
	return chunks
}

// Retrieve runs the full hybrid pipeline for query, using topK and
// mmrLambda when positive, falling back to the retriever's configured
// defaults otherwise.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, mmrLambda float32) []Candidate {
	if query == "" {
		return nil
	}
	if topK <= 0 {
		topK = h.cfg.TopK
	}
	if mmrLambda <= 0 {
		mmrLambda = h.cfg.MMRLambda
	}

	snapshot := h.ensureBM25()
	if len(snapshot) == 0 {
		return nil
	}

	variants := []string{queryiter.Normalize(query)}
	if h.cfg.EnableQueryIteration {
		variants = queryiter.Variants(query, queryiter.DefaultMaxVariants)
	}

	unioned, err := h.unionCandidates(ctx, variants, snapshot)
	if err != nil {
		h.log.Warn("hybrid retrieve: partial variant failure, continuing with what was gathered", "error", err)
	}
	if len(unioned) == 0 {
		return nil
	}

	queryEmbedding := h.store.Embed(query)

	selected := MMR(queryEmbedding, unioned, topK, mmrLambda)

	out := make([]Candidate, 0, len(selected))
	bm25ByContent := h.bm25ScoresByContent(query, snapshot)
	for _, c := range selected {
		out = append(out, Candidate{
			Chunk:      c,
			BM25Score:  bm25ByContent[c.Content],
			DenseScore: chunk.Cosine(queryEmbedding, c.Embedding),
		})
	}
	return out
}

// bm25ScoresByContent scores the original (unexpanded) query against the
// snapshot and indexes the result by content, for Candidate annotation.
func (h *HybridRetriever) bm25ScoresByContent(query string, snapshot []chunk.Chunk) map[string]float64 {
	scores := make(map[string]float64)
	for _, sd := range h.bm25.TopN(query, len(snapshot)) {
		scores[snapshot[sd.Index].Content] = sd.Score
	}
	return scores
}

// unionCandidates fans out BM25+dense candidate gathering across variants
// in parallel, unioning results content-deduplicated in first-occurrence
// order. A failing variant does not abort the others.
func (h *HybridRetriever) unionCandidates(ctx context.Context, variants []string, snapshot []chunk.Chunk) ([]chunk.Chunk, error) {
	perVariant := make([][]chunk.Chunk, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(variants))

	for i, variant := range variants {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perVariant[i] = h.variantCandidates(variant, snapshot)
			return nil
		})
	}
	err := g.Wait()

	seen := make(map[string]struct{})
	union := make([]chunk.Chunk, 0, h.cfg.StageCandidates*2)
	for _, chunks := range perVariant {
		for _, c := range chunks {
			if _, dup := seen[c.Content]; dup {
				continue
			}
			seen[c.Content] = struct{}{}
			union = append(union, c)
		}
	}
	return union, err
}

// variantCandidates gathers up to StageCandidates BM25 hits and
// StageCandidates dense hits for a single query variant.
func (h *HybridRetriever) variantCandidates(variant string, snapshot []chunk.Chunk) []chunk.Chunk {
	var out []chunk.Chunk

	for _, sd := range h.bm25.TopN(variant, h.cfg.StageCandidates) {
		out = append(out, snapshot[sd.Index])
	}

	out = append(out, h.store.RetrieveChunksFor(variant, h.cfg.StageCandidates)...)

	return out
}
