package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tutorcore/internal/config"
	"tutorcore/internal/embedding"
	"tutorcore/internal/logging"
	"tutorcore/internal/retrieval"
	"tutorcore/internal/store"
)

// Embedder is the slice of the embedding gateway the ledger needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Turn is a completed conversation turn queued for ingestion.
type Turn struct {
	UserID         string
	ConversationID string
	UserText       string
	CompletedAt    time.Time
}

// IngestStats summarizes one ingest batch.
type IngestStats struct {
	TurnsProcessed int
	FactsExtracted int
	Inserted       int
	Merged         int
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns the long-term memory pipeline. Turns are enqueued cheaply at
// the end of a request; extraction happens later in batches, over turns old
// enough that the conversation has settled.
type Ledger struct {
	cfg      config.MemoryConfig
	store    *store.LocalStore
	embedder Embedder

	params      ImportanceParams
	ingestDelay time.Duration
	retention   time.Duration

	mu      sync.Mutex
	pending []Turn
}

// NewLedger creates a memory ledger.
func NewLedger(cfg config.MemoryConfig, s *store.LocalStore, embedder Embedder) *Ledger {
	halfLife, err := time.ParseDuration(cfg.HalfLife)
	if err != nil || halfLife <= 0 {
		halfLife = 336 * time.Hour
	}
	retention, err := time.ParseDuration(cfg.RetentionWindow)
	if err != nil || retention <= 0 {
		retention = 2160 * time.Hour
	}
	ingestDelay, err := time.ParseDuration(cfg.IngestDelay)
	if err != nil || ingestDelay < 0 {
		ingestDelay = 24 * time.Hour
	}
	if cfg.IngestBatchLimit <= 0 {
		cfg.IngestBatchLimit = 200
	}

	return &Ledger{
		cfg:      cfg,
		store:    s,
		embedder: embedder,
		params: ImportanceParams{
			HalfLife:       halfLife,
			FrequencyScale: cfg.FrequencyScale,
			RecencyWeight:  cfg.RecencyWeight,
		},
		ingestDelay: ingestDelay,
		retention:   retention,
	}
}

// Enqueue registers a completed turn for later ingestion. Never blocks the
// request path.
func (l *Ledger) Enqueue(turn Turn) {
	if turn.CompletedAt.IsZero() {
		turn.CompletedAt = time.Now()
	}
	l.mu.Lock()
	l.pending = append(l.pending, turn)
	l.mu.Unlock()
}

// IngestCutoff returns the ingest cutoff as of now: only turns completed
// before it are extracted, so still-active conversations settle first.
func (l *Ledger) IngestCutoff(now time.Time) time.Time {
	return now.Add(-l.ingestDelay)
}

// PendingCount returns the queued turn count, for observability.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// IngestBatch extracts facts from queued turns completed before the cutoff.
// The explicit cutoff keeps reruns deterministic: a crashed job re-runs
// with the same cutoff and processes only what the first run left queued.
func (l *Ledger) IngestBatch(ctx context.Context, cutoff time.Time) (*IngestStats, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Ledger.IngestBatch")
	defer timer.Stop()

	batch := l.takeBatch(cutoff)
	stats := &IngestStats{TurnsProcessed: len(batch)}
	if len(batch) == 0 {
		return stats, nil
	}
	logging.Memory("Ingesting %d turns completed before %s", len(batch), cutoff.Format(time.RFC3339))

	type extracted struct {
		turn Turn
		fact Fact
		vec  []float32
	}
	var candidates []extracted
	var candMu sync.Mutex

	// Embed extracted facts concurrently; a failed embed degrades that fact
	// to token-overlap dedup instead of dropping it.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, turn := range batch {
		for _, fact := range ExtractFacts(turn.UserText) {
			turn, fact := turn, fact
			stats.FactsExtracted++
			g.Go(func() error {
				vec, err := l.embedder.Embed(gctx, fact.Content)
				if err != nil {
					logging.MemoryDebug("Embed failed for fact %q, overlap dedup only: %v", fact.Content, err)
					vec = nil
				}
				candMu.Lock()
				candidates = append(candidates, extracted{turn: turn, fact: fact, vec: vec})
				candMu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	for _, c := range candidates {
		merged, err := l.dedupAndStore(c.turn, c.fact, c.vec)
		if err != nil {
			logging.MemoryWarn("Failed to store fact %q: %v", c.fact.Content, err)
			continue
		}
		if merged {
			stats.Merged++
		} else {
			stats.Inserted++
		}
	}

	logging.Memory("Ingest complete: %d turns, %d facts (%d new, %d merged)",
		stats.TurnsProcessed, stats.FactsExtracted, stats.Inserted, stats.Merged)
	return stats, nil
}

// takeBatch removes and returns queued turns completed before the cutoff,
// up to the batch limit.
func (l *Ledger) takeBatch(cutoff time.Time) []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	var batch, keep []Turn
	for _, turn := range l.pending {
		if turn.CompletedAt.Before(cutoff) && len(batch) < l.cfg.IngestBatchLimit {
			batch = append(batch, turn)
		} else {
			keep = append(keep, turn)
		}
	}
	l.pending = keep
	return batch
}

// dedupAndStore merges a fact into an existing similar entry or inserts a
// new one. Returns true when merged.
func (l *Ledger) dedupAndStore(turn Turn, fact Fact, vec []float32) (bool, error) {
	existing, err := l.store.MemoriesByNamespace(turn.UserID, fact.Namespace)
	if err != nil {
		return false, err
	}

	for _, entry := range existing {
		if l.isDuplicate(fact.Content, vec, entry) {
			logging.MemoryDebug("Merging fact %q into existing entry %s", fact.Content, entry.ID)
			return true, l.store.TouchMemory(entry.ID)
		}
	}

	return false, l.store.InsertMemory(store.MemoryRecord{
		ID:                 uuid.NewString(),
		UserID:             turn.UserID,
		Namespace:          fact.Namespace,
		Content:            fact.Content,
		Embedding:          vec,
		SourceConversation: turn.ConversationID,
	})
}

// isDuplicate checks embedding similarity first, token overlap as fallback.
func (l *Ledger) isDuplicate(content string, vec []float32, entry store.MemoryRecord) bool {
	if vec != nil && entry.Embedding != nil {
		sim, err := embedding.CosineSimilarity(vec, entry.Embedding)
		if err == nil {
			return sim >= l.cfg.DedupSimilarity
		}
	}
	return retrieval.OverlapRatio(content, entry.Content) >= l.cfg.DedupOverlap &&
		retrieval.OverlapRatio(entry.Content, content) >= l.cfg.DedupOverlap
}

// =============================================================================
// RECALL
// =============================================================================

// Recall returns up to topK active memories most relevant to the query
// embedding, bumping their access counts. With a nil query it returns the
// most recently accessed entries.
func (l *Ledger) Recall(ctx context.Context, userID string, queryVec []float32, topK int) ([]store.MemoryRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	entries, err := l.store.ActiveMemories(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var selected []store.MemoryRecord
	if queryVec == nil {
		if len(entries) > topK {
			entries = entries[:topK]
		}
		selected = entries
	} else {
		corpus := make([][]float32, len(entries))
		for i, e := range entries {
			corpus[i] = e.Embedding
		}
		results, err := embedding.FindTopK(queryVec, corpus, topK)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			selected = append(selected, entries[r.Index])
		}
	}

	for _, entry := range selected {
		if err := l.store.TouchMemory(entry.ID); err != nil {
			logging.MemoryDebug("Failed to touch memory %s: %v", entry.ID, err)
		}
	}
	return selected, nil
}

// Score recomputes an entry's importance as of now. Importance is always
// derived, never read back from storage.
func (l *Ledger) Score(entry store.MemoryRecord, now time.Time) float64 {
	return Importance(entry.LastAccessed, entry.AccessCount, entry.UserFlagged, now, l.params)
}

// =============================================================================
// ARCHIVAL SWEEP
// =============================================================================

// Sweep archives entries whose recomputed importance sits under the floor
// and whose age exceeds the retention window, as of the explicit cutoff.
// Flagged entries never appear in candidates; archived entries are skipped
// by the store, so re-running with the same cutoff archives nothing new.
func (l *Ledger) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Ledger.Sweep")
	defer timer.Stop()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	candidates, err := l.store.SweepCandidates()
	if err != nil {
		return 0, fmt.Errorf("failed to load sweep candidates: %w", err)
	}

	var toArchive []string
	for _, entry := range candidates {
		if cutoff.Sub(entry.CreatedAt) < l.retention {
			continue
		}
		if l.Score(entry, cutoff) >= l.cfg.ImportanceFloor {
			continue
		}
		toArchive = append(toArchive, entry.ID)
	}

	archived, err := l.store.ArchiveMemories(toArchive, cutoff)
	if err != nil {
		return archived, err
	}
	logging.Memory("Sweep archived %d/%d candidates (cutoff=%s)", archived, len(candidates), cutoff.Format(time.RFC3339))
	return archived, nil
}
