package store

import (
	"database/sql"
	"fmt"
	"time"

	"tutorcore/internal/embedding"
	"tutorcore/internal/logging"
)

// KnowledgeChunk is one embedded slice of a course document.
type KnowledgeChunk struct {
	ID         int64
	Scope      string
	DocumentID string
	Title      string
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// KnowledgeMatch is a retrieval result with its relevance score.
type KnowledgeMatch struct {
	KnowledgeChunk
	Score float64
}

// AddKnowledgeChunk indexes one document chunk.
func (s *LocalStore) AddKnowledgeChunk(chunk KnowledgeChunk) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	embStr, err := serializeEmbedding(chunk.Embedding)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO knowledge_chunks (scope, document_id, title, content, embedding)
		VALUES (?, ?, ?, ?, ?)`,
		chunk.Scope, chunk.DocumentID, chunk.Title, chunk.Content, embStr)
	if err != nil {
		return 0, fmt.Errorf("failed to index chunk: %w", err)
	}
	id, _ := res.LastInsertId()
	logging.StoreDebug("Indexed knowledge chunk doc=%s scope=%s id=%d", chunk.DocumentID, chunk.Scope, id)
	return id, nil
}

// SearchKnowledge returns the topK most similar chunks in scope, best first.
// Brute-force cosine over the scope's chunks; corpora here are per-course
// and small enough that a scan beats maintaining an ANN index.
func (s *LocalStore) SearchKnowledge(scope string, query []float32, topK int) ([]KnowledgeMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 3
	}

	rows, err := s.db.Query(`
		SELECT id, scope, document_id, title, content, embedding, created_at
		FROM knowledge_chunks
		WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge index: %w", err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	var corpus [][]float32
	for rows.Next() {
		var chunk KnowledgeChunk
		var title sql.NullString
		var embStr string
		if err := rows.Scan(&chunk.ID, &chunk.Scope, &chunk.DocumentID, &title,
			&chunk.Content, &embStr, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Title = title.String
		vec, err := deserializeEmbedding(embStr)
		if err != nil {
			logging.StoreDebug("Skipping corrupt chunk embedding id=%d: %v", chunk.ID, err)
			continue
		}
		chunk.Embedding = vec
		chunks = append(chunks, chunk)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results, err := embedding.FindTopK(query, corpus, topK)
	if err != nil {
		return nil, err
	}

	matches := make([]KnowledgeMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, KnowledgeMatch{
			KnowledgeChunk: chunks[r.Index],
			Score:          r.Similarity,
		})
	}
	return matches, nil
}

// DeleteDocument removes every chunk of a document and returns the count.
func (s *LocalStore) DeleteDocument(documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM knowledge_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// KnowledgeCount returns the number of chunks in scope.
func (s *LocalStore) KnowledgeCount(scope string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge_chunks WHERE scope = ?`, scope).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
