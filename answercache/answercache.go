// Package answercache implements the semantic answer cache: a
// similarity-indexed store of past answers with TTL and source
// re-verification against the live corpus.
package answercache

import (
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/qacontext"
)

const (
	// SimilarityThreshold is the minimum query-embedding cosine similarity
	// for a cached entry to be considered a lookup candidate.
	SimilarityThreshold = 0.92
	// MinSourceOverlap is the minimum Jaccard overlap between an entry's
	// cached sources and freshly retrieved sources for the entry to
	// survive re-verification.
	MinSourceOverlap = 0.4

	DefaultTTL = 7 * 24 * time.Hour
	BoostTTL   = 30 * 24 * time.Hour
	PunishTTL  = time.Hour

	// annPromotionThreshold is the entry count above which Lookup
	// shortlists candidates via an approximate nearest-neighbor index
	// instead of a brute-force cosine scan. The ANN index only narrows
	// the candidate set considered for the mandatory threshold-and-Jaccard
	// check below; it is never a substitute for that check.
	annPromotionThreshold = 2000
)

// FreshSource is the subset of chunk.Store's surface Lookup needs to
// re-embed a question and retrieve fresh sources for re-verification.
type FreshSource interface {
	Embed(text string) []float32
	RetrieveChunksFor(query string, topK int) []chunk.Chunk
}

// CachedAnswer is one cached (question, answer, sources) triple with an
// expiry deadline. expires_at > created_at is an invariant; entries past
// expiry are never returned by Lookup.
type CachedAnswer struct {
	ID             uuid.UUID
	Question       string
	QueryEmbedding []float32
	Answer         string
	Sources        []chunk.Chunk
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Cache is the semantic answer cache. The entry map uses
// readers-writer semantics; insertions and TTL adjustments are
// serialized per entry by the single mutex.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*CachedAnswer

	ann      *hnsw.Graph[string]
	annReady bool
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[uuid.UUID]*CachedAnswer)}
}

func contentSet(chunks []chunk.Chunk) map[string]struct{} {
	set := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		set[c.Content] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type scoredEntry struct {
	entry *CachedAnswer
	sim   float64
}

// candidatesLocked returns entries with cosine(queryEmbedding, entry) >=
// SimilarityThreshold and not yet expired, sorted by similarity
// descending. Caller must hold at least a read lock.
func (c *Cache) candidatesLocked(queryEmbedding []float32, now time.Time) []scoredEntry {
	var scored []scoredEntry

	scan := func(id uuid.UUID, e *CachedAnswer) {
		if now.After(e.ExpiresAt) {
			return
		}
		sim := chunk.Cosine(queryEmbedding, e.QueryEmbedding)
		if sim >= SimilarityThreshold {
			scored = append(scored, scoredEntry{entry: e, sim: sim})
		}
	}

	if c.annReady && len(c.entries) > annPromotionThreshold {
		shortlist := c.ann.Search(queryEmbedding, annPromotionThreshold/10)
		for _, node := range shortlist {
			id, err := uuid.Parse(node.Key)
			if err != nil {
				continue
			}
			if e, ok := c.entries[id]; ok {
				scan(id, e)
			}
		}
	} else {
		for id, e := range c.entries {
			scan(id, e)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].sim > scored[j].sim })
	return scored
}

// Lookup embeds question via src, shortlists cached entries by cosine
// similarity, and for each candidate (most similar first) re-verifies
// against fresh retrieval from src before accepting it. Returns the
// first accepted entry's (answer, sources).
func (c *Cache) Lookup(question string, src FreshSource) (answer string, sources []chunk.Chunk, ok bool) {
	queryEmbedding := src.Embed(question)

	c.mu.RLock()
	candidates := c.candidatesLocked(queryEmbedding, time.Now())
	c.mu.RUnlock()

	for _, cand := range candidates {
		fresh := src.RetrieveChunksFor(question, len(cand.entry.Sources))
		overlap := jaccard(contentSet(fresh), contentSet(cand.entry.Sources))
		if overlap >= MinSourceOverlap {
			return cand.entry.Answer, cand.entry.Sources, true
		}
	}
	return "", nil, false
}

// UpsertPositive inserts or refreshes a CachedAnswer from ctx with
// expires_at = now + DefaultTTL, then extended by BoostTTL. Idempotent by
// ctx.QAID: repeated calls for the same qa_id update one entry.
func (c *Cache) UpsertPositive(ctx qacontext.AnswerContext, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &CachedAnswer{
		ID:             ctx.QAID,
		Question:       ctx.Question,
		QueryEmbedding: ctx.QueryEmbedding,
		Answer:         ctx.Answer,
		Sources:        ctx.Sources,
		CreatedAt:      ctx.CreatedAt,
		ExpiresAt:      now.Add(DefaultTTL).Add(BoostTTL),
	}
	c.entries[ctx.QAID] = entry
	c.indexLocked(entry)
}

// PunishNegative resets an existing entry's expiry to now + PunishTTL. If
// no entry exists for qaID (it was never cached by a prior 👍), this is a
// no-op: 👎 never creates a new cache entry.
func (c *Cache) PunishNegative(qaID uuid.UUID, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[qaID]
	if !ok {
		return
	}
	entry.ExpiresAt = now.Add(PunishTTL)
}

// indexLocked adds or refreshes entry in the ANN index once the entry
// count crosses annPromotionThreshold. The first time the threshold is
// crossed, every existing entry is backfilled into the graph so that
// entries inserted before promotion remain reachable via the ANN
// shortlist for the cache's entire remaining lifetime. Caller must hold
// the write lock.
func (c *Cache) indexLocked(entry *CachedAnswer) {
	if len(c.entries) <= annPromotionThreshold {
		return
	}
	if c.ann == nil {
		c.ann = hnsw.NewGraph[string]()
		c.ann.Distance = hnsw.CosineDistance
		for id, e := range c.entries {
			c.ann.Add(hnsw.MakeNode(id.String(), e.QueryEmbedding))
		}
		c.annReady = true
		return
	}
	c.ann.Add(hnsw.MakeNode(entry.ID.String(), entry.QueryEmbedding))
}

// Len returns the current entry count, for diagnostics and tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
