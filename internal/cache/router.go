package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tutorcore/internal/config"
	"tutorcore/internal/faststore"
	"tutorcore/internal/generation"
	"tutorcore/internal/logging"
	"tutorcore/internal/retrieval"
	"tutorcore/internal/store"
)

// GenerationError annotates a tier 3/4 failure with where and why.
type GenerationError struct {
	Tier   Tier
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at tier %s: %s: %v", e.Tier, e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Request is one query to resolve.
type Request struct {
	Query     string
	Embedding []float32 // nil when the embedding gateway is unavailable
	UserID    string
	SessionID string
	Scope     string // cache/retrieval scope, e.g. "course:math101"

	// Confidence is the classifier's confidence; answers produced for
	// low-confidence queries are never cached.
	Confidence float64

	// HighStakes routes generation straight to the large model.
	HighStakes bool

	// BuildContext lazily renders the conversation context. Only invoked
	// when a generation tier actually runs.
	BuildContext func(ctx context.Context) (string, error)
}

// Resolution is the outcome of one tier resolution.
type Resolution struct {
	Tier          Tier
	Answer        string
	EstimatedCost float64
	InputTokens   int
	OutputTokens  int

	// Annotations carry internal routing detail for logs and audit,
	// never shown to end users.
	Annotations map[string]string
}

// exactEntry is the JSON value stored in the fast store for exact hits.
type exactEntry struct {
	Answer     string `json:"answer"`
	OriginTier string `json:"origin_tier"`
}

// =============================================================================
// TIER ROUTER
// =============================================================================

// Router resolves queries through the tier ladder.
type Router struct {
	cfg       config.CacheConfig
	fast      faststore.Store
	local     *store.LocalStore
	index     retrieval.Index
	providers generation.Providers

	exactTTL    time.Duration
	semanticTTL time.Duration
}

// NewRouter creates a tier router.
func NewRouter(cfg config.CacheConfig, fast faststore.Store, local *store.LocalStore, index retrieval.Index, providers generation.Providers) *Router {
	exactTTL, err := time.ParseDuration(cfg.ExactTTL)
	if err != nil || exactTTL <= 0 {
		exactTTL = 24 * time.Hour
	}
	semanticTTL, err := time.ParseDuration(cfg.SemanticTTL)
	if err != nil || semanticTTL <= 0 {
		semanticTTL = 168 * time.Hour
	}
	return &Router{
		cfg:         cfg,
		fast:        fast,
		local:       local,
		index:       index,
		providers:   providers,
		exactTTL:    exactTTL,
		semanticTTL: semanticTTL,
	}
}

// Resolve walks the ladder: exact, semantic, retrieval + small model,
// retrieval + large model. The first tier that can answer wins.
func (r *Router) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	timer := logging.StartTimer(logging.CategoryRouting, "Router.Resolve")
	defer timer.Stop()

	// Tier 1: exact.
	if res := r.lookupExact(ctx, req); res != nil {
		logging.Routing("Resolved at exact tier: scope=%s", req.Scope)
		return res, nil
	}

	// Tier 2: semantic. Needs the query embedding.
	if req.Embedding != nil {
		if res := r.lookupSemantic(req); res != nil {
			logging.Routing("Resolved at semantic tier: scope=%s sim=%s", req.Scope, res.Annotations["similarity"])
			return res, nil
		}
	}

	// Tiers 3/4: retrieval + generation.
	passages := r.retrieve(ctx, req)
	contextStr := r.buildContext(ctx, req)

	res, err := r.generate(ctx, req, passages, contextStr)
	if err != nil {
		return nil, err
	}

	r.writeBack(ctx, req, res)
	logging.Routing("Resolved at %s tier: scope=%s cost=%.6f", res.Tier, req.Scope, res.EstimatedCost)
	return res, nil
}

// Converse generates a direct answer with the small model: no retrieval, no
// caching. Used for conversational turns, session-memory answers, and the
// silent downgrade when no relevant documents exist.
func (r *Router) Converse(ctx context.Context, req Request) (*Resolution, error) {
	contextStr := r.buildContext(ctx, req)

	system := tutorSystemPrompt(contextStr, nil)
	completion, err := r.providers.Small.Complete(ctx, system, req.Query)
	if err != nil {
		return nil, &GenerationError{Tier: TierRAGSmall, Reason: "conversational generation failed", Err: err}
	}

	return &Resolution{
		Tier:          TierRAGSmall,
		Answer:        completion.Text,
		EstimatedCost: r.providers.Small.Cost(completion.InputTokens, completion.OutputTokens),
		InputTokens:   completion.InputTokens,
		OutputTokens:  completion.OutputTokens,
		Annotations:   map[string]string{"mode": "conversational"},
	}, nil
}

// =============================================================================
// TIER 1/2 LOOKUPS
// =============================================================================

func (r *Router) exactKey(req Request) string {
	return fmt.Sprintf("exact:%s:%s", req.Scope, QueryHash(req.Query))
}

func (r *Router) lookupExact(ctx context.Context, req Request) *Resolution {
	raw, err := r.fast.Get(ctx, r.exactKey(req))
	if err != nil {
		if err != faststore.ErrNotFound {
			logging.CacheWarn("Exact lookup failed: %v", err)
		}
		return nil
	}

	var entry exactEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logging.CacheWarn("Corrupt exact cache entry, dropping: %v", err)
		_ = r.fast.Delete(ctx, r.exactKey(req))
		return nil
	}

	return &Resolution{
		Tier:        TierExact,
		Answer:      entry.Answer,
		Annotations: map[string]string{"origin_tier": entry.OriginTier},
	}
}

func (r *Router) lookupSemantic(req Request) *Resolution {
	hit, err := r.local.SearchSemantic(req.Scope, req.Embedding, r.cfg.SimilarityThreshold, r.cfg.MaxCandidates)
	if err != nil {
		logging.CacheWarn("Semantic lookup failed: %v", err)
		return nil
	}
	if hit == nil {
		return nil
	}
	if err := r.local.RecordCacheHit(hit.ID); err != nil {
		logging.CacheDebug("Failed to record cache hit: %v", err)
	}

	return &Resolution{
		Tier:   TierSemantic,
		Answer: hit.Answer,
		Annotations: map[string]string{
			"origin_tier": hit.Tier,
			"similarity":  fmt.Sprintf("%.4f", hit.Similarity),
			"question":    hit.Question,
		},
	}
}

// =============================================================================
// TIERS 3/4
// =============================================================================

func (r *Router) retrieve(ctx context.Context, req Request) []retrieval.Match {
	if req.Embedding == nil {
		return nil
	}
	passages, err := r.index.Search(ctx, req.Embedding, req.Scope, r.cfg.RetrievalTopK)
	if err != nil {
		logging.Routing("Retrieval failed, generating without passages: %v", err)
		return nil
	}
	return passages
}

func (r *Router) buildContext(ctx context.Context, req Request) string {
	if req.BuildContext == nil {
		return ""
	}
	contextStr, err := req.BuildContext(ctx)
	if err != nil {
		logging.ContextWarn("Context build failed, generating without it: %v", err)
		return ""
	}
	return contextStr
}

func (r *Router) generate(ctx context.Context, req Request, passages []retrieval.Match, contextStr string) (*Resolution, error) {
	system := tutorSystemPrompt(contextStr, passages)

	if !req.HighStakes {
		completion, err := r.providers.Small.Complete(ctx, system, req.Query)
		if err == nil {
			if reason, ok := r.passesConsistency(completion.Text, passages); ok {
				return &Resolution{
					Tier:          TierRAGSmall,
					Answer:        completion.Text,
					EstimatedCost: r.providers.Small.Cost(completion.InputTokens, completion.OutputTokens),
					InputTokens:   completion.InputTokens,
					OutputTokens:  completion.OutputTokens,
					Annotations:   map[string]string{"passages": fmt.Sprintf("%d", len(passages))},
				}, nil
			} else {
				logging.Routing("Small model failed self-consistency (%s), escalating", reason)
			}
		} else {
			logging.Routing("Small model failed (%v), escalating to large", err)
		}
	}

	completion, err := r.providers.Large.Complete(ctx, system, req.Query)
	if err != nil {
		return nil, &GenerationError{Tier: TierRAGLarge, Reason: "large model generation failed", Err: err}
	}

	annotations := map[string]string{"passages": fmt.Sprintf("%d", len(passages))}
	if req.HighStakes {
		annotations["high_stakes"] = "true"
	} else {
		annotations["escalated"] = "true"
	}
	return &Resolution{
		Tier:          TierRAGLarge,
		Answer:        completion.Text,
		EstimatedCost: r.providers.Large.Cost(completion.InputTokens, completion.OutputTokens),
		InputTokens:   completion.InputTokens,
		OutputTokens:  completion.OutputTokens,
		Annotations:   annotations,
	}, nil
}

// passesConsistency applies the lightweight small-model sanity check: the
// answer must not be empty or trivially short, and when passages were
// retrieved it must share some vocabulary with them.
func (r *Router) passesConsistency(answer string, passages []retrieval.Match) (string, bool) {
	if float64(len(strings.TrimSpace(answer))) < r.cfg.MinAnswerLength {
		return "answer too short", false
	}
	if len(passages) == 0 {
		return "", true
	}

	var corpus strings.Builder
	for _, p := range passages {
		corpus.WriteString(p.Content)
		corpus.WriteString(" ")
	}
	if retrieval.OverlapRatio(answer, corpus.String()) < r.cfg.MinOverlapRatio {
		return "low overlap with retrieved context", false
	}
	return "", true
}

// =============================================================================
// WRITE-BACK
// =============================================================================

// writeBack populates both caches after a successful generation. Writes are
// best-effort and idempotent; a cancelled turn writes nothing.
func (r *Router) writeBack(ctx context.Context, req Request, res *Resolution) {
	if ctx.Err() != nil {
		logging.CacheDebug("Skipping write-back, turn cancelled")
		return
	}
	if req.Confidence > 0 && req.Confidence < r.cfg.MinCacheConfidence {
		logging.CacheDebug("Skipping write-back, confidence %.2f under floor", req.Confidence)
		return
	}

	entry, err := json.Marshal(exactEntry{Answer: res.Answer, OriginTier: res.Tier.String()})
	if err == nil {
		if err := r.fast.Set(ctx, r.exactKey(req), string(entry), r.exactTTL); err != nil {
			logging.CacheWarn("Exact write-back failed: %v", err)
		}
	}

	if req.Embedding != nil {
		err := r.local.PutSemanticEntry(req.Scope, req.Query, QueryHash(req.Query),
			req.Embedding, res.Answer, res.Tier.String(), time.Now().Add(r.semanticTTL))
		if err != nil {
			logging.CacheWarn("Semantic write-back failed: %v", err)
		}
	}
}

// tutorSystemPrompt assembles the system prompt from conversation context
// and retrieved passages.
func tutorSystemPrompt(contextStr string, passages []retrieval.Match) string {
	var b strings.Builder
	b.WriteString("You are a patient tutor. Answer clearly and concisely for a student.")

	if contextStr != "" {
		b.WriteString("\n\n")
		b.WriteString(contextStr)
	}
	if len(passages) > 0 {
		b.WriteString("\n\nCourse material:\n")
		for _, p := range passages {
			if p.Title != "" {
				b.WriteString("## ")
				b.WriteString(p.Title)
				b.WriteString("\n")
			}
			b.WriteString(p.Content)
			b.WriteString("\n\n")
		}
		b.WriteString("Ground your answer in the course material above.")
	}
	return b.String()
}
