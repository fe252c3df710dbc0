// Package pipeline orchestrates the full answer path: bandit parameter
// selection, hybrid retrieval, online reranking, citation labeling, LLM
// completion, citation enforcement, and feedback routing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"

	"github.com/raskolnikoff/noesisnoema/answercache"
	"github.com/raskolnikoff/noesisnoema/bandit"
	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/citation"
	"github.com/raskolnikoff/noesisnoema/feedback"
	"github.com/raskolnikoff/noesisnoema/llmbinding"
	"github.com/raskolnikoff/noesisnoema/qacontext"
	"github.com/raskolnikoff/noesisnoema/ragerr"
	"github.com/raskolnikoff/noesisnoema/reranker"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

// synthetic source used for the "I don't know" short-circuit, so
// CitationLabeler still has exactly one valid label to enforce against.
var noContextChunk = chunk.Chunk{Content: "No relevant context was found in the corpus for this question."}

// Retriever is the subset of retrieval.HybridRetriever's surface the
// coordinator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, mmrLambda float32) []retrieval.Candidate
}

// Config holds Coordinator tunables with explicit defaults, in the
// style of the other component Config structs in this module.
type Config struct {
	SamplingParams      llmbinding.SamplingParams
	ContextTokenBudget  int // 0 = unbounded
	ReaperInterval      time.Duration
	BanditIdleWindow    time.Duration
	QAContextIdleWindow time.Duration
}

// DefaultConfig returns the Coordinator's documented defaults. Build
// substitutes the default for a zero ReaperInterval, BanditIdleWindow or
// QAContextIdleWindow; SamplingParams and ContextTokenBudget are used as
// given.
func DefaultConfig() Config {
	return Config{
		SamplingParams: llmbinding.SamplingParams{
			Temperature:  0.2,
			TopP:         0.9,
			MaxNewTokens: 512,
		},
		ReaperInterval:      time.Minute,
		BanditIdleWindow:    bandit.DefaultIdleWindow,
		QAContextIdleWindow: qacontext.DefaultIdleWindow,
	}
}

// Coordinator wires together every collaborator behind one synchronous
// Answer(question) surface. It holds its collaborators by shared,
// explicit ownership — no package-level singletons.
type Coordinator struct {
	log *slog.Logger
	cfg Config

	store     *chunk.Store
	retriever Retriever
	bandit    *bandit.Bandit
	reranker  *reranker.Reranker
	cache     *answercache.Cache
	llm       llmbinding.Binding
	qaStore   *qacontext.Store
	bus       *feedback.Bus

	reaperPool   *workerpool.WorkerPool
	reaperTicker *time.Ticker
	reaperStop   chan struct{}
	reaperOnce   sync.Once
}

// Answer runs the full pipeline for question and returns its qa_id, the
// enforced-citation answer text, and the chunks it cites. A successful
// call never panics; failures from retrieval, ranking, or the bandit are
// absorbed internally and degrade to safe defaults. Only LLM failures and
// deadline expiry surface as a *ragerr.Error.
func (c *Coordinator) Answer(ctx context.Context, question string) (qaID uuid.UUID, answer string, sources []chunk.Chunk, err error) {
	qaID = uuid.New()

	cluster, arm := c.bandit.ChooseParams(question, &qaID)
	c.log.Debug("bandit chose arm", "cluster", cluster, "arm", arm.ID, "qa_id", qaID)

	candidates := c.retriever.Retrieve(ctx, question, arm.Params.TopK, arm.Params.MMRLambda)
	if len(candidates) == 0 {
		return c.shortCircuit(qaID, question)
	}

	questionEmbedding := c.store.Embed(question)

	reranked := c.reranker.Rerank(question, questionEmbedding, candidates, arm.Params.TopK)
	filtered := filterByMinScore(reranked, questionEmbedding, arm.Params.MinScore)
	if len(filtered) == 0 {
		return c.shortCircuit(qaID, question)
	}

	var contextBlock string
	if c.cfg.ContextTokenBudget > 0 {
		contextBlock, _ = citation.BuildContextWithBudget(filtered, c.cfg.ContextTokenBudget)
	} else {
		contextBlock = citation.BuildContext(filtered)
	}

	prompt := composePrompt(question, contextBlock)

	raw, completeErr := c.llm.Complete(ctx, prompt, c.cfg.SamplingParams)
	if completeErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return qaID, "", nil, ragerr.New(ragerr.Timeout, "pipeline.Coordinator.Answer", completeErr)
		}
		return qaID, "", nil, ragerr.New(ragerr.Unavailable, "pipeline.Coordinator.Answer", completeErr)
	}

	raw = llmbinding.StripThinkMarkers(raw)
	answer = citation.EnforceCitations(raw, len(filtered))

	c.qaStore.Put(qacontext.AnswerContext{
		QAID:           qaID,
		Question:       question,
		QueryEmbedding: questionEmbedding,
		Answer:         answer,
		Sources:        filtered,
		CreatedAt:      time.Now(),
	})

	return qaID, answer, filtered, nil
}

func (c *Coordinator) shortCircuit(qaID uuid.UUID, question string) (uuid.UUID, string, []chunk.Chunk, error) {
	sources := []chunk.Chunk{noContextChunk}
	answer := "I don't know. [1]"
	c.qaStore.Put(qacontext.AnswerContext{
		QAID:           qaID,
		Question:       question,
		QueryEmbedding: c.store.Embed(question),
		Answer:         answer,
		Sources:        sources,
		CreatedAt:      time.Now(),
	})
	return qaID, answer, sources, nil
}

func filterByMinScore(chunks []chunk.Chunk, questionEmbedding []float32, minScore float32) []chunk.Chunk {
	if minScore <= 0 {
		return chunks
	}
	out := make([]chunk.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if chunk.Cosine(questionEmbedding, ch.Embedding) >= float64(minScore) {
			out = append(out, ch)
		}
	}
	return out
}

func composePrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the provided context. Cite sources as instructed.\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// AnswerFeedback publishes an answer-level verdict for qaID, driving
// bandit reward, answer-cache insertion/TTL, and QAContext cleanup
// through the feedback bus subscribers wired in Build.
func (c *Coordinator) AnswerFeedback(qaID uuid.UUID, up bool, tags ...string) {
	verdict := feedback.Down
	if up {
		verdict = feedback.Up
	}
	c.bus.PublishAnswer(feedback.AnswerEvent{QAID: qaID, Verdict: verdict, Tags: tags, At: time.Now()})
}

// DocFeedback publishes a doc-level verdict for one cited chunk, driving
// the online reranker's SGD update through the feedback bus.
func (c *Coordinator) DocFeedback(qaID *uuid.UUID, ch chunk.Chunk, up bool, reason feedback.DocReason) {
	verdict := feedback.Down
	if up {
		verdict = feedback.Up
	}
	c.bus.PublishDoc(feedback.DocEvent{QAID: qaID, Chunk: ch, Verdict: verdict, Reason: reason, At: time.Now()})
}

// LookupCached checks the semantic answer cache before running the full
// pipeline; callers typically try this first and fall back to Answer on
// a miss.
func (c *Coordinator) LookupCached(question string) (answer string, sources []chunk.Chunk, ok bool) {
	return c.cache.Lookup(question, c.store)
}

// startReaper launches the workerpool-backed idle-window sweep that
// expires stale bandit selections and QAContext entries on a fixed
// interval, bounding memory without a per-entry timer goroutine.
func (c *Coordinator) startReaper() {
	c.reaperPool = workerpool.New(1)
	c.reaperTicker = time.NewTicker(c.cfg.ReaperInterval)
	c.reaperStop = make(chan struct{})

	go func() {
		for {
			select {
			case <-c.reaperTicker.C:
				c.reaperPool.Submit(func() {
					now := time.Now()
					removed := c.bandit.ExpireStale(now)
					removed += c.qaStore.ExpireStale(now)
					if removed > 0 {
						c.log.Debug("reaper expired stale entries", "count", removed)
					}
				})
			case <-c.reaperStop:
				return
			}
		}
	}()
}

// Stop halts the background reaper and waits for in-flight sweeps to
// finish. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.reaperOnce.Do(func() {
		if c.reaperTicker != nil {
			c.reaperTicker.Stop()
		}
		if c.reaperStop != nil {
			close(c.reaperStop)
		}
		if c.reaperPool != nil {
			c.reaperPool.StopWait()
		}
	})
}
