// Package session builds the bounded conversation context supplied to
// generation tiers: profile + summary + recent verbatim turns, never more
// than the token budget.
package session

import (
	"context"
	"time"
)

// Message is one turn in a conversation, as stored in the authoritative log.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile is the lightweight user sketch extracted from conversation text.
// Fields merge without overwriting previously detected non-empty values.
type Profile struct {
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// SessionContext is the derived, replaceable cache of one conversation's
// context. The authoritative history lives in the external message log.
type SessionContext struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	RecentTurns    []Message `json:"recent_turns"`
	Summary        string    `json:"summary,omitempty"`

	// SummaryCovers counts the messages folded into Summary since the
	// conversation started. SummarizedThrough is the timestamp of the last
	// of them; the log window slides, so positions shift between builds
	// while timestamps do not.
	SummaryCovers     int       `json:"summary_covers"`
	SummarizedThrough time.Time `json:"summarized_through,omitempty"`

	Profile  Profile   `json:"profile"`
	CachedAt time.Time `json:"cached_at"`
}

// MessageLog reads the authoritative per-conversation history. Append-only
// and owned elsewhere; this subsystem only reads it.
type MessageLog interface {
	// Recent returns up to limit most recent messages, oldest first.
	Recent(ctx context.Context, userID, conversationID string, limit int) ([]Message, error)
}

// Summarizer compresses older turns into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}
