// Package pipeline orchestrates one tutoring turn end to end: quota gate,
// intent classification, knowledge availability probe, tier routing,
// usage accounting, and async handoff to the memory ledger. Turns within
// one conversation are serialized; turns across conversations run
// concurrently under a shared provider-call budget.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tutorcore/internal/cache"
	"tutorcore/internal/config"
	"tutorcore/internal/intent"
	"tutorcore/internal/logging"
	"tutorcore/internal/memory"
	"tutorcore/internal/quota"
	"tutorcore/internal/retrieval"
	"tutorcore/internal/session"
)

// Embedder is the embedding surface the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ConversationLog is a message log the pipeline can append to.
type ConversationLog interface {
	session.MessageLog
	Append(userID, conversationID string, msg session.Message)
}

// TurnRequest is one user message entering the pipeline.
type TurnRequest struct {
	UserID         string
	ConversationID string
	Query          string
	Scope          string // cache/retrieval scope, e.g. "course:math101"
	HighStakes     bool   // route generation straight to the large model
	RequestID      string // assigned when empty
}

// TurnResult is the outcome delivered to the caller.
type TurnResult struct {
	RequestID     string
	Answer        string
	Intent        intent.Intent
	Tier          cache.Tier
	EstimatedCost float64

	// Denied is set when quota blocked the turn; Answer is empty and no
	// provider call was made.
	Denied *quota.Denial

	// NeedsClarification marks an ambiguous query the tutor should ask
	// about rather than guess.
	NeedsClarification bool

	// Annotations carry internal routing detail for observability.
	Annotations map[string]string
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline wires the turn flow together.
type Pipeline struct {
	cfg        config.Config
	embedder   Embedder
	classifier *intent.Classifier
	router     *cache.Router
	builder    *session.Builder
	log        ConversationLog
	index      retrieval.Index
	enforcer   *quota.Enforcer
	ledger     *memory.Ledger
	audit      *logging.AuditLogger

	locks *sessionLocks
}

// New creates a turn pipeline.
func New(
	cfg config.Config,
	embedder Embedder,
	classifier *intent.Classifier,
	router *cache.Router,
	builder *session.Builder,
	log ConversationLog,
	index retrieval.Index,
	enforcer *quota.Enforcer,
	ledger *memory.Ledger,
	audit *logging.AuditLogger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		embedder:   embedder,
		classifier: classifier,
		router:     router,
		builder:    builder,
		log:        log,
		index:      index,
		enforcer:   enforcer,
		ledger:     ledger,
		audit:      audit,
		locks:      newSessionLocks(),
	}
}

// Process runs one turn. Quota denials come back inside the result, not as
// errors; an error means generation failed at every available tier.
func (p *Pipeline) Process(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	timer := logging.StartTimer(logging.CategoryRouting, "Pipeline.Process")
	defer timer.Stop()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Scope == "" {
		req.Scope = "general"
	}

	// Turns within one conversation run in submission order.
	unlock := p.locks.acquire(req.UserID + ":" + req.ConversationID)
	defer unlock()

	started := time.Now()
	p.audit.Record(logging.AuditEvent{
		EventType: logging.AuditTurnStart,
		UserID:    req.UserID,
		SessionID: req.ConversationID,
		RequestID: req.RequestID,
		Success:   true,
	})

	// Quota gate before anything billable.
	denial, err := p.enforcer.Check(ctx, req.UserID, quota.ResourceChatMessages)
	if err != nil {
		return nil, fmt.Errorf("quota check failed: %w", err)
	}
	if denial != nil {
		p.audit.Record(logging.AuditEvent{
			EventType: logging.AuditQuotaDenied,
			UserID:    req.UserID,
			SessionID: req.ConversationID,
			RequestID: req.RequestID,
			Fields:    map[string]interface{}{"resource": denial.ExceededResource, "used": denial.CurrentUsage, "limit": denial.Limit},
		})
		return &TurnResult{RequestID: req.RequestID, Denied: denial}, nil
	}

	// Embedding is best-effort: a dead embedding provider degrades the
	// semantic tier and retrieval, never the turn.
	queryVec, err := p.embedder.Embed(ctx, req.Query)
	if err != nil {
		logging.RoutingDebug("Query embedding unavailable for %s: %v", req.RequestID, err)
		queryVec = nil
	}

	hasHistory := p.hasHistory(ctx, req)
	cls := p.classifier.Classify(ctx, req.Query, hasHistory)

	annotations := map[string]string{"intent": cls.Intent.String()}
	if cls.Fallback {
		annotations["intent_fallback"] = cls.Reason
	}

	useRAG := cls.Intent == intent.IntentRAG
	if useRAG {
		denial, err := p.enforcer.Check(ctx, req.UserID, quota.ResourceRAGQueries)
		if err != nil {
			return nil, fmt.Errorf("quota check failed: %w", err)
		}
		if denial != nil {
			p.audit.Record(logging.AuditEvent{
				EventType: logging.AuditQuotaDenied,
				UserID:    req.UserID,
				SessionID: req.ConversationID,
				RequestID: req.RequestID,
				Fields:    map[string]interface{}{"resource": denial.ExceededResource},
			})
			return &TurnResult{RequestID: req.RequestID, Denied: denial}, nil
		}

		if reason, ok := p.knowledgeAvailable(ctx, queryVec, req.Scope); !ok {
			// Silent downgrade: the student gets a normal conversational
			// answer, never "no documents found".
			useRAG = false
			annotations["fallback"] = "true"
			annotations["fallback_reason"] = reason
			p.audit.Record(logging.AuditEvent{
				EventType: logging.AuditRAGFallback,
				UserID:    req.UserID,
				SessionID: req.ConversationID,
				RequestID: req.RequestID,
				Fields:    map[string]interface{}{"reason": reason},
			})
		}
	}

	creq := cache.Request{
		Query:      req.Query,
		Embedding:  queryVec,
		UserID:     req.UserID,
		SessionID:  req.ConversationID,
		Scope:      req.Scope,
		Confidence: cls.Confidence,
		HighStakes: req.HighStakes,
		BuildContext: func(ctx context.Context) (string, error) {
			return p.builder.Build(ctx, req.UserID, req.ConversationID)
		},
	}

	var res *cache.Resolution
	if useRAG {
		res, err = p.router.Resolve(ctx, creq)
	} else {
		res, err = p.router.Converse(ctx, creq)
	}
	if err != nil {
		p.audit.Record(logging.AuditEvent{
			EventType: logging.AuditProviderError,
			UserID:    req.UserID,
			SessionID: req.ConversationID,
			RequestID: req.RequestID,
			Error:     err.Error(),
		})
		return nil, err
	}

	// Cost is committed once generation ran, so usage is recorded even when
	// the caller has gone away.
	p.consume(ctx, req, useRAG, res)

	p.audit.Record(logging.AuditEvent{
		EventType:    logging.AuditTurnEnd,
		UserID:       req.UserID,
		SessionID:    req.ConversationID,
		RequestID:    req.RequestID,
		Tier:         res.Tier.String(),
		CostEstimate: res.EstimatedCost,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Success:      true,
		DurationMs:   time.Since(started).Milliseconds(),
	})

	// Past the cancellation point nothing else is persisted: the result is
	// discarded, so the log and ledger must not see the turn.
	if ctx.Err() == nil {
		// The assistant stamp is strictly later so timestamp order matches
		// log order; summary coverage is tracked by timestamp.
		now := time.Now()
		p.log.Append(req.UserID, req.ConversationID, session.Message{Role: "user", Content: req.Query, Timestamp: now})
		p.log.Append(req.UserID, req.ConversationID, session.Message{Role: "assistant", Content: res.Answer, Timestamp: now.Add(time.Microsecond)})
		p.ledger.Enqueue(memory.Turn{
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			UserText:       req.Query,
			CompletedAt:    now,
		})
	}

	for k, v := range res.Annotations {
		annotations[k] = v
	}
	return &TurnResult{
		RequestID:          req.RequestID,
		Answer:             res.Answer,
		Intent:             cls.Intent,
		Tier:               res.Tier,
		EstimatedCost:      res.EstimatedCost,
		NeedsClarification: cls.NeedsClarification,
		Annotations:        annotations,
	}, nil
}

// hasHistory reports whether the conversation has prior messages.
func (p *Pipeline) hasHistory(ctx context.Context, req TurnRequest) bool {
	msgs, err := p.log.Recent(ctx, req.UserID, req.ConversationID, 1)
	return err == nil && len(msgs) > 0
}

// knowledgeAvailable probes the retrieval index for relevant material.
// Returns ok=false with a reason when the index is unavailable, empty for
// this scope, or the best match sits under the relevance floor. A missing
// query embedding skips the probe; the exact cache tier can still serve.
func (p *Pipeline) knowledgeAvailable(ctx context.Context, queryVec []float32, scope string) (string, bool) {
	if queryVec == nil {
		return "", true
	}

	matches, err := p.index.Search(ctx, queryVec, scope, p.cfg.Cache.RetrievalTopK)
	if err != nil {
		return "index unavailable", false
	}
	if len(matches) == 0 {
		return "no documents in scope", false
	}
	if matches[0].Score < p.cfg.Cache.RelevanceFloor {
		return fmt.Sprintf("best match %.3f under relevance floor", matches[0].Score), false
	}
	return "", true
}

// consume records usage after a successful resolution, detached from the
// caller's cancellation.
func (p *Pipeline) consume(ctx context.Context, req TurnRequest, usedRAG bool, res *cache.Resolution) {
	cctx := context.WithoutCancel(ctx)

	record := func(resource string) {
		if err := p.enforcer.Consume(cctx, req.UserID, resource); err != nil {
			logging.QuotaDebug("Failed to consume %s for %s: %v", resource, req.UserID, err)
		}
	}

	record(quota.ResourceChatMessages)
	if usedRAG && !res.Tier.Cached() {
		record(quota.ResourceRAGQueries)
	}
	if res.Tier == cache.TierRAGLarge {
		record(quota.ResourceLargeModelCalls)
	}

	p.audit.Record(logging.AuditEvent{
		EventType: logging.AuditQuotaConsumed,
		UserID:    req.UserID,
		SessionID: req.ConversationID,
		RequestID: req.RequestID,
		Tier:      res.Tier.String(),
		Success:   true,
	})
}
