// Package feedback implements an in-process publish/subscribe bus for
// answer-level and doc-level verdicts, fanning them out to the bandit,
// reranker, and answer cache.
package feedback

import (
	"sync"
	"time"

	"github.com/google/uuid"
	concpool "github.com/sourcegraph/conc/pool"

	"github.com/raskolnikoff/noesisnoema/chunk"
)

// Verdict is a user's thumbs-up/thumbs-down judgment.
type Verdict int

const (
	Up Verdict = iota
	Down
)

func (v Verdict) String() string {
	if v == Up {
		return "up"
	}
	return "down"
}

// DocReason further qualifies a doc-level verdict.
type DocReason int

const (
	ReasonUnknown DocReason = iota
	ReasonHelpful
	ReasonNotRelevant
)

// AnswerEvent is an answer-level FeedbackEvent: a verdict on a whole
// answer identified by qa_id.
type AnswerEvent struct {
	QAID    uuid.UUID
	Verdict Verdict
	Tags    []string
	At      time.Time
}

// DocEvent is a doc-level FeedbackEvent: a verdict on one cited chunk,
// optionally tied to the answer it was cited from.
type DocEvent struct {
	QAID    *uuid.UUID
	Chunk   chunk.Chunk
	Verdict Verdict
	Reason  DocReason
	At      time.Time
}

// AnswerHandle and DocHandle are opaque unsubscribe tokens.
type AnswerHandle uint64
type DocHandle uint64

// Bus is an in-process pub/sub bus with two independent channels:
// answer-level and doc-level. Subscribers are invoked synchronously on
// the publisher's goroutine in subscription order; a listener that
// blocks blocks the publisher, so listeners doing real work must hand
// off to their own executor. Delivery is best-effort: an event published
// with no subscribers is simply dropped.
type Bus struct {
	mu            sync.Mutex
	nextAnswerID  uint64
	nextDocID     uint64
	answerListens map[AnswerHandle]func(AnswerEvent)
	docListens    map[DocHandle]func(DocEvent)
	asyncPool     *concpool.Pool
}

// NewBus builds an empty Bus. Its async pool grows unbounded with
// in-flight async listeners, mirroring conc's own default pool.
func NewBus() *Bus {
	return &Bus{
		answerListens: make(map[AnswerHandle]func(AnswerEvent)),
		docListens:    make(map[DocHandle]func(DocEvent)),
		asyncPool:     concpool.New(),
	}
}

// SubscribeAnswerAsync registers fn to run on the bus's goroutine pool for
// every published AnswerEvent, rather than synchronously on the
// publisher's goroutine. Use for listeners that do real work (cache
// writes, logging) that must not stall PublishAnswer's caller.
func (b *Bus) SubscribeAnswerAsync(fn func(AnswerEvent)) AnswerHandle {
	return b.SubscribeAnswer(func(ev AnswerEvent) {
		b.asyncPool.Go(func() { fn(ev) })
	})
}

// SubscribeDocAsync registers fn to run on the bus's goroutine pool for
// every published DocEvent.
func (b *Bus) SubscribeDocAsync(fn func(DocEvent)) DocHandle {
	return b.SubscribeDoc(func(ev DocEvent) {
		b.asyncPool.Go(func() { fn(ev) })
	})
}

// SubscribeAnswer registers fn to be called for every published
// AnswerEvent, returning a handle for Unsubscribe.
func (b *Bus) SubscribeAnswer(fn func(AnswerEvent)) AnswerHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAnswerID++
	h := AnswerHandle(b.nextAnswerID)
	b.answerListens[h] = fn
	return h
}

// SubscribeDoc registers fn to be called for every published DocEvent,
// returning a handle for Unsubscribe.
func (b *Bus) SubscribeDoc(fn func(DocEvent)) DocHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextDocID++
	h := DocHandle(b.nextDocID)
	b.docListens[h] = fn
	return h
}

// UnsubscribeAnswer removes a previously registered answer-level listener.
func (b *Bus) UnsubscribeAnswer(h AnswerHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.answerListens, h)
}

// UnsubscribeDoc removes a previously registered doc-level listener.
func (b *Bus) UnsubscribeDoc(h DocHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docListens, h)
}

// PublishAnswer delivers ev to every current answer-level subscriber, in
// subscription order, on the calling goroutine.
func (b *Bus) PublishAnswer(ev AnswerEvent) {
	for _, fn := range b.snapshotAnswerListeners() {
		fn(ev)
	}
}

// PublishDoc delivers ev to every current doc-level subscriber, in
// subscription order, on the calling goroutine.
func (b *Bus) PublishDoc(ev DocEvent) {
	for _, fn := range b.snapshotDocListeners() {
		fn(ev)
	}
}

func (b *Bus) snapshotAnswerListeners() []func(AnswerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(AnswerEvent), 0, len(b.answerListens))
	for h := 1; h <= int(b.nextAnswerID); h++ {
		if fn, ok := b.answerListens[AnswerHandle(h)]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (b *Bus) snapshotDocListeners() []func(DocEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(DocEvent), 0, len(b.docListens))
	for h := 1; h <= int(b.nextDocID); h++ {
		if fn, ok := b.docListens[DocHandle(h)]; ok {
			out = append(out, fn)
		}
	}
	return out
}
