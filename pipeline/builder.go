package pipeline

import (
	"log/slog"
	"time"

	"github.com/raskolnikoff/noesisnoema/answercache"
	"github.com/raskolnikoff/noesisnoema/bandit"
	"github.com/raskolnikoff/noesisnoema/chunk"
	"github.com/raskolnikoff/noesisnoema/feedback"
	"github.com/raskolnikoff/noesisnoema/llmbinding"
	"github.com/raskolnikoff/noesisnoema/qacontext"
	"github.com/raskolnikoff/noesisnoema/reranker"
)

// Builder assembles a Coordinator from explicitly owned collaborators,
// in the initialization order EmbeddingProvider -> VectorStore ->
// Retrievers -> Bandit/Reranker -> Cache -> Coordinator.
type Builder struct {
	store     *chunk.Store
	retriever Retriever
	arms      []bandit.Arm
	uniform   bandit.UniformSource
	reranker  *reranker.Reranker
	cache     *answercache.Cache
	llm       llmbinding.Binding
	log       *slog.Logger
	cfg       Config
}

// NewBuilder starts a Builder over store and retriever; every other
// collaborator has a default and can be overridden with WithX.
func NewBuilder(store *chunk.Store, retriever Retriever) *Builder {
	return &Builder{
		store:     store,
		retriever: retriever,
		arms:      defaultArms(),
		cfg:       DefaultConfig(),
	}
}

func defaultArms() []bandit.Arm {
	names := []string{"factual", "balanced", "creative", "json", "code"}
	arms := make([]bandit.Arm, 0, len(names))
	for _, name := range names {
		params, err := PresetParams(name)
		if err != nil {
			continue
		}
		arms = append(arms, bandit.Arm{ID: name, Params: params})
	}
	return arms
}

// WithArms overrides the bandit's arm configuration.
func (b *Builder) WithArms(arms []bandit.Arm) *Builder {
	b.arms = arms
	return b
}

// WithUniformSource overrides the bandit's Thompson-sampling uniform
// source (e.g. bandit.NewFixedSequence for deterministic tests).
func (b *Builder) WithUniformSource(src bandit.UniformSource) *Builder {
	b.uniform = src
	return b
}

// WithReranker overrides the default fresh reranker.Reranker.
func (b *Builder) WithReranker(r *reranker.Reranker) *Builder {
	b.reranker = r
	return b
}

// WithCache overrides the default fresh answercache.Cache.
func (b *Builder) WithCache(c *answercache.Cache) *Builder {
	b.cache = c
	return b
}

// WithLLM sets the llmbinding.Binding the coordinator calls to produce
// completions. Required: Build panics without one.
func (b *Builder) WithLLM(llm llmbinding.Binding) *Builder {
	b.llm = llm
	return b
}

// WithLogger overrides the default slog.Default() logger.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// WithConfig overrides the default Config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// Build assembles the Coordinator, wires feedback-bus subscribers that
// route verdicts to the bandit, reranker, and answer cache, and starts
// the background idle-window reaper. Panics if no LLM binding was set,
// matching EmbeddingProvider's "fail fast at construction" contract
// extended to the coordinator's one mandatory external collaborator.
func (b *Builder) Build() *Coordinator {
	if b.llm == nil {
		panic("pipeline: Builder.Build called without WithLLM")
	}

	log := b.log
	if log == nil {
		log = slog.Default()
	}

	cfg := b.cfg
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = DefaultConfig().ReaperInterval
	}

	idleWindow := b.cfg.BanditIdleWindow
	if idleWindow <= 0 {
		idleWindow = bandit.DefaultIdleWindow
	}
	uniform := b.uniform
	if uniform == nil {
		uniform = bandit.DefaultUniformSource
	}

	c := &Coordinator{
		log:       log,
		cfg:       cfg,
		store:     b.store,
		retriever: b.retriever,
		bandit:    bandit.New(b.arms, uniform, idleWindow),
		reranker:  orDefault(b.reranker, reranker.New(0)),
		cache:     orDefaultCache(b.cache),
		llm:       b.llm,
		qaStore:   qacontext.NewStore(b.cfg.QAContextIdleWindow),
		bus:       feedback.NewBus(),
	}

	c.wireFeedback()
	c.startReaper()
	return c
}

func orDefault(r *reranker.Reranker, fallback *reranker.Reranker) *reranker.Reranker {
	if r != nil {
		return r
	}
	return fallback
}

func orDefaultCache(cache *answercache.Cache) *answercache.Cache {
	if cache != nil {
		return cache
	}
	return answercache.New()
}

// wireFeedback subscribes the bandit, reranker, and answer-cache updates
// to the coordinator's own bus, and prunes the QAContextStore entry once
// an answer-level verdict has been processed for it.
func (c *Coordinator) wireFeedback() {
	c.bus.SubscribeAnswer(func(ev feedback.AnswerEvent) {
		up := ev.Verdict == feedback.Up
		c.bandit.Reward(ev.QAID, up)

		now := time.Now()
		if up {
			if ctx, ok := c.qaStore.Get(ev.QAID); ok {
				c.cache.UpsertPositive(ctx, now)
			}
		} else {
			c.cache.PunishNegative(ev.QAID, now)
		}

		c.qaStore.Remove(ev.QAID)
	})

	c.bus.SubscribeDoc(func(ev feedback.DocEvent) {
		up := ev.Verdict == feedback.Up
		var question string
		var queryEmbedding []float32
		if ev.QAID != nil {
			if ctx, ok := c.qaStore.Get(*ev.QAID); ok {
				question = ctx.Question
				queryEmbedding = ctx.QueryEmbedding
			}
		}
		if queryEmbedding == nil {
			queryEmbedding = c.store.Embed(question)
		}
		c.reranker.Update(question, queryEmbedding, ev.Chunk, up)
	})
}
