package store

import (
	"database/sql"
	"fmt"
	"time"

	"tutorcore/internal/logging"
)

// MemoryRecord is one row of the memory ledger.
type MemoryRecord struct {
	ID                 string
	UserID             string
	Namespace          string
	Content            string
	Embedding          []float32
	SourceConversation string
	UserFlagged        bool
	Archived           bool
	AccessCount        int
	LastAccessed       time.Time
	CreatedAt          time.Time
}

// InsertMemory stores a new ledger entry.
func (s *LocalStore) InsertMemory(rec MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embStr, err := serializeEmbedding(rec.Embedding)
	if err != nil {
		return err
	}
	if rec.Namespace == "" {
		rec.Namespace = "general"
	}

	_, err = s.db.Exec(`
		INSERT INTO memory_entries
			(id, user_id, namespace, content, embedding, source_conversation, user_flagged, access_count, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		rec.ID, rec.UserID, rec.Namespace, rec.Content, embStr, rec.SourceConversation, rec.UserFlagged)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	logging.MemoryDebug("Inserted memory %s for user %s (namespace=%s)", rec.ID, rec.UserID, rec.Namespace)
	return nil
}

// ActiveMemories returns all non-archived entries for a user, embeddings
// included, ordered most recently accessed first.
func (s *LocalStore) ActiveMemories(userID string) ([]MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, namespace, content, embedding, source_conversation, user_flagged, access_count, last_accessed, created_at
		FROM memory_entries
		WHERE user_id = ? AND archived = 0
		ORDER BY last_accessed DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	return scanMemoryRows(rows)
}

// MemoriesByNamespace returns non-archived entries in one namespace.
func (s *LocalStore) MemoriesByNamespace(userID, namespace string) ([]MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, namespace, content, embedding, source_conversation, user_flagged, access_count, last_accessed, created_at
		FROM memory_entries
		WHERE user_id = ? AND namespace = ? AND archived = 0
		ORDER BY last_accessed DESC`, userID, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	return scanMemoryRows(rows)
}

func scanMemoryRows(rows *sql.Rows) ([]MemoryRecord, error) {
	var records []MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		var embStr string
		var source sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Namespace, &rec.Content, &embStr,
			&source, &rec.UserFlagged, &rec.AccessCount, &rec.LastAccessed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		rec.SourceConversation = source.String
		vec, err := deserializeEmbedding(embStr)
		if err != nil {
			logging.MemoryWarn("Skipping corrupt embedding on memory %s: %v", rec.ID, err)
		} else {
			rec.Embedding = vec
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TouchMemory records an access: bumps access_count and last_accessed.
func (s *LocalStore) TouchMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE memory_entries
		SET access_count = access_count + 1, last_accessed = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch memory %s: %w", id, err)
	}
	return nil
}

// MergeMemoryContent replaces an entry's content and embedding after a
// dedup merge, counting the merge as an access.
func (s *LocalStore) MergeMemoryContent(id, content string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embStr, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE memory_entries
		SET content = ?, embedding = ?, access_count = access_count + 1, last_accessed = CURRENT_TIMESTAMP
		WHERE id = ?`, content, embStr, id)
	if err != nil {
		return fmt.Errorf("failed to merge memory %s: %w", id, err)
	}
	return nil
}

// SetUserFlag pins or unpins an entry against archival.
func (s *LocalStore) SetUserFlag(id string, flagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE memory_entries SET user_flagged = ? WHERE id = ?`, flagged, id)
	if err != nil {
		return fmt.Errorf("failed to flag memory %s: %w", id, err)
	}
	return nil
}

// SweepCandidates returns every non-archived, non-flagged entry across all
// users. The caller scores them; archival decisions stay out of SQL so the
// importance function lives in one place.
func (s *LocalStore) SweepCandidates() ([]MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, namespace, content, embedding, source_conversation, user_flagged, access_count, last_accessed, created_at
		FROM memory_entries
		WHERE archived = 0 AND user_flagged = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep candidates: %w", err)
	}
	defer rows.Close()

	return scanMemoryRows(rows)
}

// ArchiveMemories marks the given entries archived at the given time.
// Already-archived entries are unaffected, so re-running a sweep is safe.
func (s *LocalStore) ArchiveMemories(ids []string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE memory_entries SET archived = 1, archived_at = ?
		WHERE id = ? AND archived = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare archive: %w", err)
	}
	defer stmt.Close()

	archived := 0
	for _, id := range ids {
		res, err := stmt.Exec(at, id)
		if err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			archived++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}

	logging.Memory("Archived %d/%d memory entries", archived, len(ids))
	return archived, nil
}

// RestoreMemory brings an archived entry back into the active set.
func (s *LocalStore) RestoreMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE memory_entries
		SET archived = 0, archived_at = NULL, last_accessed = CURRENT_TIMESTAMP
		WHERE id = ? AND archived = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to restore memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s is not archived", id)
	}
	logging.Memory("Restored archived memory %s", id)
	return nil
}

// UserIDs returns every user with ledger entries.
func (s *LocalStore) UserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM memory_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemoryCounts returns (active, archived) row counts for a user.
func (s *LocalStore) MemoryCounts(userID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active, archived int
	err := s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN archived = 0 THEN 1 END),
			COUNT(CASE WHEN archived = 1 THEN 1 END)
		FROM memory_entries WHERE user_id = ?`, userID).Scan(&active, &archived)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return active, archived, nil
}
