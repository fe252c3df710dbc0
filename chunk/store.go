package chunk

import (
	"math"
	"sort"
	"sync"

	"github.com/raskolnikoff/noesisnoema/embedding"
)

// Stats summarizes the current contents of a Store, useful for
// observability and for retrieval.BM25Index's staleness check.
type Stats struct {
	Count      int
	Dimension  int
	Generation uint64
}

// Store owns a set of Chunks and provides cosine-similarity search over
// them. Many concurrent readers (FindRelevant, RetrieveChunksFor) may run
// at once; mutations (Add, Remove, Clear, ReembedAll) take exclusive
// access. Safe for concurrent use from multiple goroutines.
type Store struct {
	mu         sync.RWMutex
	chunks     []Chunk
	seen       map[string]struct{} // identity key -> present, for dedup
	embedder   embedding.Provider
	generation uint64 // bumped on every mutation; BM25Index uses this to detect staleness
}

// NewStore builds an empty Store backed by embedder for AddTexts and ReembedAll.
func NewStore(embedder embedding.Provider) *Store {
	return &Store{
		chunks:   make([]Chunk, 0),
		seen:     make(map[string]struct{}),
		embedder: embedder,
	}
}

// Add inserts chunks into the store. When deduplicate is true, any
// incoming chunk whose (content, embedding) pair already exists is
// skipped; the caller does not need to check beforehand.
func (s *Store) Add(chunks []Chunk, deduplicate bool) {
	if len(chunks) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		key := identityKey(c)
		if deduplicate {
			if _, exists := s.seen[key]; exists {
				continue
			}
		}
		s.chunks = append(s.chunks, c.Clone())
		s.seen[key] = struct{}{}
	}
	s.generation++
}

// AddTexts embeds each text with the store's active embedding provider and
// inserts the resulting chunks.
func (s *Store) AddTexts(texts []string, deduplicate bool) {
	if len(texts) == 0 {
		return
	}

	chunks := make([]Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, Chunk{
			Content:   t,
			Embedding: s.embedder.Embed(t),
		})
	}
	s.Add(chunks, deduplicate)
}

// ReembedAll rewrites every stored embedding using the store's current
// provider, preserving content, source metadata, and insertion order.
// Use this after swapping the embedding model id.
func (s *Store) ReembedAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSeen := make(map[string]struct{}, len(s.chunks))
	for i, c := range s.chunks {
		c.Embedding = s.embedder.Embed(c.Content)
		s.chunks[i] = c
		newSeen[identityKey(c)] = struct{}{}
	}
	s.seen = newSeen
	s.generation++
}

// Remove deletes every chunk whose content matches any of the given
// strings, returning the number of chunks removed.
func (s *Store) Remove(contents []string) int {
	if len(contents) == 0 {
		return 0
	}
	toRemove := make(map[string]struct{}, len(contents))
	for _, c := range contents {
		toRemove[c] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	removed := 0
	for _, c := range s.chunks {
		if _, drop := toRemove[c.Content]; drop {
			delete(s.seen, identityKey(c))
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	if removed > 0 {
		s.generation++
	}
	return removed
}

// Clear removes every chunk from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = s.chunks[:0]
	s.seen = make(map[string]struct{})
	s.generation++
}

// All returns a defensive copy of every chunk currently stored, in
// insertion order.
func (s *Store) All() []Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Stats reports the current size, embedding dimension, and generation counter.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dim := 0
	if len(s.chunks) > 0 {
		dim = len(s.chunks[0].Embedding)
	} else if s.embedder != nil {
		dim = s.embedder.Dim()
	}
	return Stats{Count: len(s.chunks), Dimension: dim, Generation: s.generation}
}

// Generation returns the current mutation generation, bumped on every
// Add/Remove/Clear/ReembedAll call. retrieval.BM25Index uses this to
// detect when its cached document-frequency table must be rebuilt.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// FindRelevant returns the topK chunks whose embedding dimension matches
// queryEmbedding, ranked by cosine similarity, ties broken by insertion
// order. If no stored chunk has a matching dimension, it defensively
// returns the first topK chunks unchanged.
func (s *Store) FindRelevant(queryEmbedding []float32, topK int) []Chunk {
	if topK <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk Chunk
		score float64
		idx   int
	}

	matches := make([]scored, 0, len(s.chunks))
	for i, c := range s.chunks {
		if len(c.Embedding) != len(queryEmbedding) {
			continue
		}
		matches = append(matches, scored{chunk: c, score: Cosine(queryEmbedding, c.Embedding), idx: i})
	}

	if len(matches) == 0 {
		n := topK
		if n > len(s.chunks) {
			n = len(s.chunks)
		}
		out := make([]Chunk, n)
		copy(out, s.chunks[:n])
		return out
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].idx < matches[j].idx
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]Chunk, len(matches))
	for i, m := range matches {
		out[i] = m.chunk
	}
	return out
}

// RetrieveChunksFor embeds query with the store's provider and returns the
// topK most relevant chunks.
func (s *Store) RetrieveChunksFor(query string, topK int) []Chunk {
	if query == "" {
		return nil
	}
	qEmb := s.embedder.Embed(query)
	return s.FindRelevant(qEmb, topK)
}

// Embed exposes the store's active embedding provider directly, for
// callers (HybridRetriever, SemanticAnswerCache) that need the query
// vector itself rather than a FindRelevant search.
func (s *Store) Embed(text string) []float32 {
	return s.embedder.Embed(text)
}

// Cosine computes dot(a,b) / (‖a‖·‖b‖) with a 1e-9 floor on each norm to
// avoid division by zero. Vectors of mismatched length yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA < 1e-9 {
		normA = 1e-9
	}
	if normB < 1e-9 {
		normB = 1e-9
	}

	return dot / (normA * normB)
}
