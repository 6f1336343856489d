package store

import "fmt"

// migrate creates the required tables.
func (s *LocalStore) migrate() error {
	// Memory ledger: long-lived facts about a user, with access tracking
	// feeding the importance score and an archived flag for the sweep.
	memoryTable := `
	CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		namespace TEXT NOT NULL DEFAULT 'general',
		content TEXT NOT NULL,
		embedding TEXT,
		source_conversation TEXT,
		user_flagged INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		archived_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_memory_user ON memory_entries(user_id, archived);
	CREATE INDEX IF NOT EXISTS idx_memory_namespace ON memory_entries(user_id, namespace, archived);
	`

	// Semantic answer cache: embeddings of previously answered questions,
	// scoped so answers never leak across courses.
	cacheTable := `
	CREATE TABLE IF NOT EXISTS semantic_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		question TEXT NOT NULL,
		question_hash TEXT NOT NULL,
		embedding TEXT NOT NULL,
		answer TEXT NOT NULL,
		tier TEXT NOT NULL,
		hit_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME,
		UNIQUE(scope, question_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_semcache_scope ON semantic_cache(scope, expires_at);
	`

	// Knowledge index: course documents chunked and embedded for retrieval.
	knowledgeTable := `
	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		document_id TEXT NOT NULL,
		title TEXT,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_scope ON knowledge_chunks(scope);
	CREATE INDEX IF NOT EXISTS idx_knowledge_doc ON knowledge_chunks(document_id);
	`

	for _, ddl := range []string{memoryTable, cacheTable, knowledgeTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
