// Package reranker implements an online logistic-regression reranker
// over retrieval candidates, with an LRU hard-negative cache fed by
// per-passage feedback.
package reranker

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

// FeatureCount is the fixed dimensionality F of the reranker's feature
// space: bias, dense similarity, bm25, positional prior, diversity,
// citation match.
const FeatureCount = 6

// Features is a fixed F=6 feature vector for one (query, chunk) pair.
type Features [FeatureCount]float64

const (
	defaultLearningRate  = 0.05
	defaultL2            = 1e-4
	hardNegPenalty       = 0.5
	keepTopForDiversity  = 8
	defaultCacheCapacity = 1024
)

// Key returns the stable identity key the reranker uses for a chunk, in
// both the HardNegCache and the feature-snapshot store.
func Key(c chunk.Chunk) string {
	sum := sha256.Sum256([]byte(c.Content))
	return hex.EncodeToString(sum[:])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(w, x Features) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

// citationMatch returns +0.5 if lowerQuery contains the chunk's source
// title, and +0.5 if it contains the last component of the source path,
// clamped to [0,1].
func citationMatch(lowerQuery string, c chunk.Chunk) float64 {
	var score float64
	if title := strings.ToLower(strings.TrimSpace(c.SourceTitle)); title != "" && strings.Contains(lowerQuery, title) {
		score += 0.5
	}
	if c.SourcePath != "" {
		base := strings.ToLower(path.Base(c.SourcePath))
		if base != "" && base != "." && strings.Contains(lowerQuery, base) {
			score += 0.5
		}
	}
	return clamp01(score)
}

// positionalPrior maps a candidate's rank (0-indexed, best-first) within
// total candidates to a [0,1] prior favoring earlier positions.
func positionalPrior(rank, total int) float64 {
	if total <= 1 {
		return 1
	}
	return 1 - float64(rank)/float64(total-1)
}

// buildFeatures computes the full feature vector for one candidate.
// anchors holds the dense embeddings of the top keep_top_for_diversity
// candidates by dense similarity; diversity is 1 minus the max cosine
// similarity to any anchor (0 if c is itself the sole anchor).
func buildFeatures(lowerQuery string, c retrieval.Candidate, queryEmbedding []float32, rank, total int, anchors [][]float32) Features {
	denseSim := chunk.Cosine(queryEmbedding, c.Chunk.Embedding)

	maxAnchorSim := 0.0
	for _, a := range anchors {
		sim := chunk.Cosine(c.Chunk.Embedding, a)
		if sim > maxAnchorSim {
			maxAnchorSim = sim
		}
	}

	return Features{
		1,
		clamp01(0.5*denseSim + 0.5),
		clamp01(math.Tanh(c.BM25Score)),
		clamp01(positionalPrior(rank, total)),
		clamp01(1 - maxAnchorSim),
		citationMatch(lowerQuery, c.Chunk),
	}
}

type snapshotKey struct {
	query string
	chunk string
}

func (k snapshotKey) String() string {
	return k.query + "\x00" + k.chunk
}

// Reranker is an online logistic-regression reranker over retrieval
// candidates. w is read under a snapshot copy and written under
// exclusive access; the feature-snapshot store and the hard-negative
// cache are both bounded LRUs.
type Reranker struct {
	mu sync.RWMutex
	w  Features

	lr, l2 float64

	feats   *lru.Cache[string, Features]
	hardNeg *lru.Cache[string, struct{}]
}

// New builds a Reranker with a zero weight vector and LRU capacity
// capacity for both the feature-snapshot store and the hard-negative
// cache (spec range 512-1024; pass 0 for the default of 1024).
func New(capacity int) *Reranker {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	feats, _ := lru.New[string, Features](capacity)
	hardNeg, _ := lru.New[string, struct{}](capacity)
	return &Reranker{
		lr:      defaultLearningRate,
		l2:      defaultL2,
		feats:   feats,
		hardNeg: hardNeg,
	}
}

// Weights returns a copy of the current weight vector.
func (r *Reranker) Weights() Features {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.w
}

// Rerank scores candidates against the current weight snapshot and
// returns the top_k chunks by score, breaking ties by original order.
func (r *Reranker) Rerank(query string, queryEmbedding []float32, candidates []retrieval.Candidate, topK int) []chunk.Chunk {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}

	lowerQuery := strings.ToLower(query)

	anchorCount := keepTopForDiversity
	if anchorCount > len(candidates) {
		anchorCount = len(candidates)
	}
	byDense := append([]retrieval.Candidate{}, candidates...)
	sort.SliceStable(byDense, func(i, j int) bool { return byDense[i].DenseScore > byDense[j].DenseScore })
	anchors := make([][]float32, 0, anchorCount)
	for i := 0; i < anchorCount; i++ {
		anchors = append(anchors, byDense[i].Chunk.Embedding)
	}

	w := r.Weights()

	type scored struct {
		chunk chunk.Chunk
		score float64
		order int
	}
	results := make([]scored, len(candidates))

	for i, cand := range candidates {
		feat := buildFeatures(lowerQuery, cand, queryEmbedding, i, len(candidates), anchors)
		r.feats.Add(snapshotKey{query: query, chunk: Key(cand.Chunk)}.String(), feat)

		score := sigmoid(dot(w, feat))
		if r.hardNeg.Contains(Key(cand.Chunk)) {
			score -= hardNegPenalty
			if score < 0 {
				score = 0
			}
		}
		results[i] = scored{chunk: cand.Chunk, score: score, order: i}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].order < results[j].order
	})

	if topK > len(results) {
		topK = len(results)
	}
	out := make([]chunk.Chunk, topK)
	for i := 0; i < topK; i++ {
		out[i] = results[i].chunk
	}
	return out
}

// Update applies one online SGD step for (query, c) given 👍 (up=true) or
// 👎 (up=false) feedback. If no feature snapshot was stored for this pair
// (e.g. it was evicted, or never scored), it is recomputed with the BM25,
// positional, and diversity slots zeroed, per the spec's conservative
// fallback.
func (r *Reranker) Update(query string, queryEmbedding []float32, c chunk.Chunk, up bool) {
	key := Key(c)
	feat, ok := r.feats.Get(snapshotKey{query: query, chunk: key}.String())
	if !ok {
		denseSim := chunk.Cosine(queryEmbedding, c.Embedding)
		feat = Features{
			1,
			clamp01(0.5*denseSim + 0.5),
			0,
			0,
			0,
			citationMatch(strings.ToLower(query), c),
		}
	}

	y := 0.0
	if up {
		y = 1.0
	}

	r.mu.Lock()
	w := r.w
	err := sigmoid(dot(w, feat)) - y
	for i := range w {
		w[i] -= r.lr * (err*feat[i] + r.l2*w[i])
	}
	r.w = w
	r.mu.Unlock()

	if up {
		r.hardNeg.Remove(key)
	} else {
		r.hardNeg.Add(key, struct{}{})
	}
}

// HardNegSize returns the current number of entries in the hard-negative
// cache, for diagnostics and tests.
func (r *Reranker) HardNegSize() int {
	return r.hardNeg.Len()
}
