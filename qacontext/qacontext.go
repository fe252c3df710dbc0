// Package qacontext holds the short-lived record of the last answer
// produced for each question-answer id.
package qacontext

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raskolnikoff/noesisnoema/chunk"
)

// DefaultIdleWindow bounds how long an AnswerContext survives without
// being explicitly removed.
const DefaultIdleWindow = 30 * time.Minute

// AnswerContext is the record created when a question is answered: the
// question, its embedding, the composed answer, and the chunks it cites.
type AnswerContext struct {
	QAID           uuid.UUID
	Question       string
	QueryEmbedding []float32
	Answer         string
	Sources        []chunk.Chunk
	CreatedAt      time.Time
}

type entry struct {
	ctx       AnswerContext
	expiresAt time.Time
}

// Store is a thread-safe qa_id -> AnswerContext map with concurrent
// reads, exclusive writes, and idle-window expiry.
type Store struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]entry
	idleWindow time.Duration
}

// NewStore builds a Store with idleWindow expiry (0 uses DefaultIdleWindow).
func NewStore(idleWindow time.Duration) *Store {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &Store{entries: make(map[uuid.UUID]entry), idleWindow: idleWindow}
}

// Put stores or refreshes ctx, resetting its idle-window deadline.
func (s *Store) Put(ctx AnswerContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ctx.QAID] = entry{ctx: ctx, expiresAt: time.Now().Add(s.idleWindow)}
}

// Get returns the AnswerContext for qaID, if present and not expired.
func (s *Store) Get(qaID uuid.UUID) (AnswerContext, bool) {
	s.mu.RLock()
	e, ok := s.entries[qaID]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return AnswerContext{}, false
	}
	return e.ctx, true
}

// Remove explicitly deletes qaID's entry, e.g. once feedback has been
// processed for it.
func (s *Store) Remove(qaID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, qaID)
}

// ExpireStale removes entries whose idle window elapsed as of now,
// returning the count removed.
func (s *Store) ExpireStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, for diagnostics and tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
