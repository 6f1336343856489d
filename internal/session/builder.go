package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tutorcore/internal/config"
	"tutorcore/internal/faststore"
	"tutorcore/internal/logging"
)

// Builder assembles the bounded conversation context for generation tiers.
// SessionContexts live in the fast store under a sliding TTL; when the fast
// store is down a bounded process-local map keeps the feature alive at the
// cost of cross-instance consistency.
type Builder struct {
	cfg        config.SessionConfig
	fast       faststore.Store
	log        MessageLog
	summarizer Summarizer
	counter    *TokenCounter
	ttl        time.Duration

	fallbackMu sync.Mutex
	fallback   map[string]*SessionContext
}

// NewBuilder creates a context builder.
func NewBuilder(cfg config.SessionConfig, fast faststore.Store, log MessageLog, summarizer Summarizer) *Builder {
	ttl, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil || ttl <= 0 {
		ttl = time.Hour
	}
	if cfg.MaxTokensPerContext <= 0 {
		cfg.MaxTokensPerContext = 2000
	}
	if cfg.MaxMessagesInContext <= 0 {
		cfg.MaxMessagesInContext = 10
	}
	if cfg.RecentMessagesVerbatim <= 0 {
		cfg.RecentMessagesVerbatim = 3
	}
	if cfg.SummarizationThreshold <= 0 {
		cfg.SummarizationThreshold = 5
	}
	if cfg.LocalFallbackSize <= 0 {
		cfg.LocalFallbackSize = 4096
	}

	return &Builder{
		cfg:        cfg,
		fast:       fast,
		log:        log,
		summarizer: summarizer,
		counter:    NewTokenCounter(),
		ttl:        ttl,
		fallback:   make(map[string]*SessionContext),
	}
}

func sessionKey(userID, conversationID string) string {
	return fmt.Sprintf("session:%s:%s", userID, conversationID)
}

// Build returns the rendered context for one turn, never exceeding the
// token budget. It also refreshes and re-persists the SessionContext.
func (b *Builder) Build(ctx context.Context, userID, conversationID string) (string, error) {
	timer := logging.StartTimer(logging.CategoryContext, "Builder.Build")
	defer timer.Stop()

	sc := b.loadContext(ctx, userID, conversationID)

	// The log is authoritative; the cached context contributes only its
	// summary and profile.
	messages, err := b.log.Recent(ctx, userID, conversationID, b.cfg.MaxMessagesInContext)
	if err != nil {
		return "", fmt.Errorf("failed to read message log: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	verbatimStart := len(messages) - b.cfg.RecentMessagesVerbatim
	if verbatimStart < 0 {
		verbatimStart = 0
	}
	older := messages[:verbatimStart]
	recent := messages[verbatimStart:]

	// Messages in the older region the summary does not cover yet.
	firstNew := len(older)
	for i, m := range older {
		if m.Timestamp.After(sc.SummarizedThrough) {
			firstNew = i
			break
		}
	}
	unsummarized := older[firstNew:]

	var rawOlder []Message
	if len(older) > b.cfg.SummarizationThreshold && len(unsummarized) > 0 {
		// Fold the existing summary in so earlier turns stay represented
		// after they scroll out of the log window.
		input := unsummarized
		if sc.Summary != "" {
			input = make([]Message, 0, len(unsummarized)+1)
			input = append(input, Message{Role: "summary", Content: sc.Summary, Timestamp: sc.SummarizedThrough})
			input = append(input, unsummarized...)
		}
		summary, err := b.summarizer.Summarize(ctx, input)
		if err != nil {
			logging.ContextWarn("Summarization failed, using raw older turns: %v", err)
			rawOlder = unsummarized
		} else {
			sc.Summary = summary
			sc.SummaryCovers += len(unsummarized)
			sc.SummarizedThrough = unsummarized[len(unsummarized)-1].Timestamp
			logging.ContextDebug("Summarized %d older messages for %s (%d covered total)",
				len(unsummarized), conversationID, sc.SummaryCovers)
		}
	} else {
		// Under the threshold: carry uncovered older turns raw.
		rawOlder = unsummarized
	}

	sc.Profile = ExtractProfile(sc.Profile, messages)
	sc.RecentTurns = recent
	sc.CachedAt = time.Now()

	rendered := b.render(sc, rawOlder, recent)
	b.persist(ctx, sc)
	return rendered, nil
}

// Context returns the current SessionContext without rebuilding, for
// introspection and tests.
func (b *Builder) Context(ctx context.Context, userID, conversationID string) *SessionContext {
	return b.loadContext(ctx, userID, conversationID)
}

// Invalidate drops the cached context for a conversation.
func (b *Builder) Invalidate(ctx context.Context, userID, conversationID string) {
	key := sessionKey(userID, conversationID)
	if err := b.fast.Delete(ctx, key); err != nil {
		logging.ContextDebug("Failed to delete session %s: %v", key, err)
	}
	b.fallbackMu.Lock()
	delete(b.fallback, key)
	b.fallbackMu.Unlock()
}

// =============================================================================
// LOAD / PERSIST
// =============================================================================

func (b *Builder) loadContext(ctx context.Context, userID, conversationID string) *SessionContext {
	key := sessionKey(userID, conversationID)

	raw, err := b.fast.Get(ctx, key)
	if err == nil {
		var sc SessionContext
		if jsonErr := json.Unmarshal([]byte(raw), &sc); jsonErr == nil {
			return &sc
		}
		logging.ContextWarn("Corrupt session context for %s, rebuilding", key)
	} else if !errors.Is(err, faststore.ErrNotFound) {
		// Fast store down: fall back to the local map.
		logging.ContextWarn("Fast store unavailable (%v), using local session map", err)
		b.fallbackMu.Lock()
		sc, ok := b.fallback[key]
		b.fallbackMu.Unlock()
		if ok && time.Since(sc.CachedAt) < b.ttl {
			copied := *sc
			return &copied
		}
	}

	return &SessionContext{UserID: userID, ConversationID: conversationID}
}

func (b *Builder) persist(ctx context.Context, sc *SessionContext) {
	key := sessionKey(sc.UserID, sc.ConversationID)
	data, err := json.Marshal(sc)
	if err != nil {
		logging.ContextWarn("Failed to marshal session context: %v", err)
		return
	}

	// Sliding TTL: every build pushes expiry out.
	if err := b.fast.Set(ctx, key, string(data), b.ttl); err != nil {
		logging.ContextWarn("Fast store write failed (%v), keeping local copy", err)
		b.fallbackMu.Lock()
		if len(b.fallback) >= b.cfg.LocalFallbackSize {
			for k := range b.fallback {
				delete(b.fallback, k)
				if len(b.fallback) < b.cfg.LocalFallbackSize {
					break
				}
			}
		}
		copied := *sc
		b.fallback[key] = &copied
		b.fallbackMu.Unlock()
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// render assembles profile + summary + recent turns, trimming recent turns
// from the oldest side until the estimate fits the budget.
func (b *Builder) render(sc *SessionContext, rawOlder, recent []Message) string {
	budget := b.cfg.MaxTokensPerContext

	var header strings.Builder
	if profile := sc.Profile.Render(); profile != "" {
		header.WriteString(profile)
		header.WriteString("\n\n")
	}
	if sc.Summary != "" {
		header.WriteString("Earlier in this conversation: ")
		header.WriteString(sc.Summary)
		header.WriteString("\n\n")
	}
	if len(rawOlder) > 0 {
		header.WriteString("Earlier turns:\n")
		for _, m := range rawOlder {
			header.WriteString(renderMessage(m))
		}
		header.WriteString("\n")
	}

	turns := recent
	for len(turns) > 0 {
		rendered := header.String() + renderTurns(turns)
		if b.counter.CountString(rendered) <= budget {
			return rendered
		}
		// Over budget: drop the oldest verbatim turn and retry.
		turns = turns[1:]
	}

	// Even a single turn blew the budget; hard-truncate the header+turn.
	rendered := header.String() + renderTurns(recent[len(recent)-1:])
	maxChars := budget * 4
	if len(rendered) > maxChars {
		rendered = rendered[:maxChars]
	}
	return rendered
}

func renderTurns(turns []Message) string {
	var b strings.Builder
	b.WriteString("Recent turns:\n")
	for _, m := range turns {
		b.WriteString(renderMessage(m))
	}
	return b.String()
}

func renderMessage(m Message) string {
	role := m.Role
	switch role {
	case "user":
		role = "Student"
	case "assistant":
		role = "Tutor"
	case "summary":
		role = "Summary so far"
	}
	return fmt.Sprintf("%s: %s\n", role, m.Content)
}
