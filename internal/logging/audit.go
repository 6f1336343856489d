// Package logging - turn-level audit events.
// Audit logs are structured JSON events recording how each turn was resolved
// (tier, cost, token counts) so spend can be reconciled offline.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Turn lifecycle
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"

	// Resolution events
	AuditCacheHit      AuditEventType = "cache_hit"
	AuditCacheWrite    AuditEventType = "cache_write"
	AuditTierResolved  AuditEventType = "tier_resolved"
	AuditTierEscalated AuditEventType = "tier_escalated"
	AuditRAGFallback   AuditEventType = "rag_fallback"

	// Provider events
	AuditProviderCall  AuditEventType = "provider_call"
	AuditProviderError AuditEventType = "provider_error"

	// Quota events
	AuditQuotaDenied   AuditEventType = "quota_denied"
	AuditQuotaConsumed AuditEventType = "quota_consumed"

	// Ledger events
	AuditMemoryIngest  AuditEventType = "memory_ingest"
	AuditMemoryArchive AuditEventType = "memory_archive"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp    int64                  `json:"ts"` // Unix milliseconds
	EventType    AuditEventType         `json:"event"`
	SessionID    string                 `json:"session,omitempty"`
	UserID       string                 `json:"user,omitempty"`
	RequestID    string                 `json:"req,omitempty"`
	Tier         string                 `json:"tier,omitempty"`
	CostEstimate float64                `json:"cost,omitempty"`
	InputTokens  int                    `json:"tokens_in,omitempty"`
	OutputTokens int                    `json:"tokens_out,omitempty"`
	Success      bool                   `json:"success"`
	DurationMs   int64                  `json:"dur_ms,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger appends audit events to a daily JSONL file.
// Unlike category loggers, the audit trail is written even in production mode
// because cost accounting depends on it.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	dir  string
	day  string
}

// NewAuditLogger creates an audit logger writing under dir/audit/.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	auditDir := filepath.Join(dir, ".tutord", "audit")
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &AuditLogger{dir: auditDir}, nil
}

// Record appends an event. Failures are swallowed; audit must never fail a turn.
func (a *AuditLogger) Record(ev AuditEvent) {
	if a == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	day := time.Now().Format("2006-01-02")
	if a.file == nil || day != a.day {
		if a.file != nil {
			a.file.Close()
		}
		path := filepath.Join(a.dir, fmt.Sprintf("%s_audit.jsonl", day))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		a.file = f
		a.day = day
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	a.file.Write(append(data, '\n'))
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}
