package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-process MessageLog for tests and single-node runs.
// Production points MessageLog at the platform's conversation store.
type MemoryLog struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

// NewMemoryLog creates an empty in-process log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{messages: make(map[string][]Message)}
}

func logKey(userID, conversationID string) string {
	return fmt.Sprintf("%s:%s", userID, conversationID)
}

// Append adds a message to a conversation, stamping it when unstamped.
func (l *MemoryLog) Append(userID, conversationID string, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := logKey(userID, conversationID)
	l.messages[key] = append(l.messages[key], msg)
}

// Recent returns up to limit most recent messages, oldest first.
func (l *MemoryLog) Recent(ctx context.Context, userID, conversationID string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.messages[logKey(userID, conversationID)]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

// Len returns the total message count for a conversation.
func (l *MemoryLog) Len(userID, conversationID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages[logKey(userID, conversationID)])
}
