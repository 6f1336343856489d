package store

import (
	"fmt"
	"time"

	"tutorcore/internal/embedding"
	"tutorcore/internal/logging"
)

// SemanticEntry is one cached question/answer pair.
type SemanticEntry struct {
	ID        int64
	Scope     string
	Question  string
	Answer    string
	Tier      string
	HitCount  int
	CreatedAt time.Time
}

// SemanticHit is a cache candidate with its similarity to the query.
type SemanticHit struct {
	SemanticEntry
	Similarity float64
}

// PutSemanticEntry caches an answer under its question embedding. Writing
// the same scoped question again replaces the previous answer, so repeated
// write-backs converge on one row.
func (s *LocalStore) PutSemanticEntry(scope, question, questionHash string, vec []float32, answer, tier string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embStr, err := serializeEmbedding(vec)
	if err != nil {
		return err
	}

	var expires interface{}
	if !expiresAt.IsZero() {
		expires = expiresAt.UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO semantic_cache (scope, question, question_hash, embedding, answer, tier, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, question_hash) DO UPDATE SET
			answer = excluded.answer,
			tier = excluded.tier,
			embedding = excluded.embedding,
			expires_at = excluded.expires_at`,
		scope, question, questionHash, embStr, answer, tier, expires)
	if err != nil {
		return fmt.Errorf("failed to cache answer: %w", err)
	}
	logging.CacheDebug("Cached semantic entry scope=%s tier=%s", scope, tier)
	return nil
}

// SearchSemantic returns the best unexpired entry in scope at or above the
// similarity threshold. Candidates are scanned newest-first and ties on
// similarity keep the more recent answer.
func (s *LocalStore) SearchSemantic(scope string, query []float32, threshold float64, maxCandidates int) (*SemanticHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxCandidates <= 0 {
		maxCandidates = 50
	}

	rows, err := s.db.Query(`
		SELECT id, scope, question, embedding, answer, tier, hit_count, created_at
		FROM semantic_cache
		WHERE scope = ? AND (expires_at IS NULL OR datetime(expires_at) > datetime('now'))
		ORDER BY created_at DESC
		LIMIT ?`, scope, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to query semantic cache: %w", err)
	}
	defer rows.Close()

	var best *SemanticHit
	for rows.Next() {
		var entry SemanticEntry
		var embStr string
		if err := rows.Scan(&entry.ID, &entry.Scope, &entry.Question, &embStr,
			&entry.Answer, &entry.Tier, &entry.HitCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		vec, err := deserializeEmbedding(embStr)
		if err != nil {
			logging.CacheWarn("Skipping corrupt cache embedding id=%d: %v", entry.ID, err)
			continue
		}
		sim, err := embedding.CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		if sim < threshold {
			continue
		}
		// Newest-first scan: strict > keeps the more recent entry on ties.
		if best == nil || sim > best.Similarity {
			best = &SemanticHit{SemanticEntry: entry, Similarity: sim}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return best, nil
}

// RecordCacheHit bumps the hit counter for observability.
func (s *LocalStore) RecordCacheHit(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE semantic_cache SET hit_count = hit_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

// PurgeExpiredCache removes expired rows and returns the count.
func (s *LocalStore) PurgeExpiredCache() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM semantic_cache WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Cache("Purged %d expired semantic cache entries", n)
	}
	return n, nil
}

// CacheStats returns per-scope entry counts.
func (s *LocalStore) CacheStats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT scope, COUNT(*) FROM semantic_cache GROUP BY scope`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var scope string
		var count int
		if err := rows.Scan(&scope, &count); err != nil {
			return nil, err
		}
		stats[scope] = count
	}
	return stats, rows.Err()
}
