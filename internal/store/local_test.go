package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryLifecycle(t *testing.T) {
	s := newTestStore(t)

	rec := MemoryRecord{
		ID:        "m1",
		UserID:    "u1",
		Namespace: "preferences",
		Content:   "prefers worked examples over definitions",
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	if err := s.InsertMemory(rec); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	memories, err := s.ActiveMemories("u1")
	if err != nil {
		t.Fatalf("ActiveMemories: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("got %d memories, want 1", len(memories))
	}
	got := memories[0]
	if got.Content != rec.Content || got.Namespace != "preferences" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.AccessCount != 1 {
		t.Fatalf("fresh entry access_count=%d, want 1", got.AccessCount)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Fatalf("embedding round-trip: %v", got.Embedding)
	}

	if err := s.TouchMemory("m1"); err != nil {
		t.Fatalf("TouchMemory: %v", err)
	}
	memories, _ = s.ActiveMemories("u1")
	if memories[0].AccessCount != 2 {
		t.Fatalf("access_count=%d after touch, want 2", memories[0].AccessCount)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		err := s.InsertMemory(MemoryRecord{ID: id, UserID: "u1", Content: "fact " + id})
		if err != nil {
			t.Fatalf("InsertMemory %s: %v", id, err)
		}
	}

	archived, err := s.ArchiveMemories([]string{"a", "b"}, time.Now())
	if err != nil {
		t.Fatalf("ArchiveMemories: %v", err)
	}
	if archived != 2 {
		t.Fatalf("archived=%d, want 2", archived)
	}

	// Re-archiving already-archived rows affects nothing.
	archived, err = s.ArchiveMemories([]string{"a", "b"}, time.Now())
	if err != nil {
		t.Fatalf("second ArchiveMemories: %v", err)
	}
	if archived != 0 {
		t.Fatalf("second archive touched %d rows, want 0", archived)
	}

	active, archivedCount, err := s.MemoryCounts("u1")
	if err != nil {
		t.Fatalf("MemoryCounts: %v", err)
	}
	if active != 1 || archivedCount != 2 {
		t.Fatalf("counts=%d/%d, want 1/2", active, archivedCount)
	}

	if err := s.RestoreMemory("a"); err != nil {
		t.Fatalf("RestoreMemory: %v", err)
	}
	active, archivedCount, _ = s.MemoryCounts("u1")
	if active != 2 || archivedCount != 1 {
		t.Fatalf("counts after restore=%d/%d, want 2/1", active, archivedCount)
	}

	// Restoring an active entry fails.
	if err := s.RestoreMemory("a"); err == nil {
		t.Fatal("restoring active entry should fail")
	}
}

func TestSweepCandidatesExcludesFlaggedAndArchived(t *testing.T) {
	s := newTestStore(t)

	s.InsertMemory(MemoryRecord{ID: "plain", UserID: "u1", Content: "plain"})
	s.InsertMemory(MemoryRecord{ID: "pinned", UserID: "u1", Content: "pinned", UserFlagged: true})
	s.InsertMemory(MemoryRecord{ID: "gone", UserID: "u2", Content: "gone"})
	s.ArchiveMemories([]string{"gone"}, time.Now())

	candidates, err := s.SweepCandidates()
	if err != nil {
		t.Fatalf("SweepCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "plain" {
		t.Fatalf("candidates=%+v, want only 'plain'", candidates)
	}
}

func TestSemanticCache_ScopeIsolationAndThreshold(t *testing.T) {
	s := newTestStore(t)

	vec := []float32{1, 0, 0}
	err := s.PutSemanticEntry("course:math", "what is a limit", "h1", vec, "A limit is...", "rag-small", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PutSemanticEntry: %v", err)
	}

	// Same scope, identical vector: hit.
	hit, err := s.SearchSemantic("course:math", vec, 0.95, 50)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if hit == nil || hit.Answer != "A limit is..." {
		t.Fatalf("hit=%+v, want cached answer", hit)
	}
	if hit.Similarity < 0.999 {
		t.Fatalf("similarity=%v, want ~1.0", hit.Similarity)
	}

	// Different scope: no hit.
	hit, err = s.SearchSemantic("course:physics", vec, 0.95, 50)
	if err != nil {
		t.Fatalf("SearchSemantic other scope: %v", err)
	}
	if hit != nil {
		t.Fatalf("answer leaked across scopes: %+v", hit)
	}

	// Below threshold: no hit.
	hit, err = s.SearchSemantic("course:math", []float32{0, 1, 0}, 0.95, 50)
	if err != nil {
		t.Fatalf("SearchSemantic orthogonal: %v", err)
	}
	if hit != nil {
		t.Fatalf("orthogonal query matched: %+v", hit)
	}
}

func TestSemanticCache_ExpiredEntriesIgnoredAndPurged(t *testing.T) {
	s := newTestStore(t)

	vec := []float32{1, 0, 0}
	err := s.PutSemanticEntry("c", "q", "h1", vec, "stale", "exact", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("PutSemanticEntry: %v", err)
	}

	hit, err := s.SearchSemantic("c", vec, 0.9, 50)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if hit != nil {
		t.Fatalf("expired entry served: %+v", hit)
	}

	purged, err := s.PurgeExpiredCache()
	if err != nil {
		t.Fatalf("PurgeExpiredCache: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged=%d, want 1", purged)
	}
}

func TestSemanticCache_UpsertReplacesAnswer(t *testing.T) {
	s := newTestStore(t)

	vec := []float32{1, 0, 0}
	s.PutSemanticEntry("c", "q", "h1", vec, "first", "rag-small", time.Now().Add(time.Hour))
	s.PutSemanticEntry("c", "q", "h1", vec, "second", "rag-large", time.Now().Add(time.Hour))

	hit, err := s.SearchSemantic("c", vec, 0.9, 50)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if hit == nil || hit.Answer != "second" || hit.Tier != "rag-large" {
		t.Fatalf("hit=%+v, want replaced answer", hit)
	}
}

func TestKnowledgeSearch_RanksBySimilarity(t *testing.T) {
	s := newTestStore(t)

	chunks := []KnowledgeChunk{
		{Scope: "course:math", DocumentID: "d1", Title: "Limits", Content: "limits text", Embedding: []float32{1, 0, 0}},
		{Scope: "course:math", DocumentID: "d1", Title: "Derivatives", Content: "derivatives text", Embedding: []float32{0.9, 0.1, 0}},
		{Scope: "course:math", DocumentID: "d2", Title: "Integrals", Content: "integrals text", Embedding: []float32{0, 1, 0}},
		{Scope: "course:bio", DocumentID: "d3", Title: "Cells", Content: "cells text", Embedding: []float32{1, 0, 0}},
	}
	for _, c := range chunks {
		if _, err := s.AddKnowledgeChunk(c); err != nil {
			t.Fatalf("AddKnowledgeChunk: %v", err)
		}
	}

	matches, err := s.SearchKnowledge("course:math", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Title != "Limits" || matches[1].Title != "Derivatives" {
		t.Fatalf("ranking wrong: %s, %s", matches[0].Title, matches[1].Title)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatalf("scores not descending: %v < %v", matches[0].Score, matches[1].Score)
	}

	// Other scope never appears.
	for _, m := range matches {
		if m.Scope != "course:math" {
			t.Fatalf("match leaked from scope %s", m.Scope)
		}
	}
}

func TestKnowledgeSearch_NullTitle(t *testing.T) {
	s := newTestStore(t)

	embStr, err := serializeEmbedding([]float32{1, 0, 0})
	if err != nil {
		t.Fatalf("serializeEmbedding: %v", err)
	}
	// Rows indexed by external tooling can carry a NULL title.
	_, err = s.db.Exec(`
		INSERT INTO knowledge_chunks (scope, document_id, title, content, embedding)
		VALUES ('c', 'd1', NULL, 'untitled chunk', ?)`, embStr)
	if err != nil {
		t.Fatalf("insert chunk: %v", err)
	}

	matches, err := s.SearchKnowledge("c", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(matches) != 1 || matches[0].Title != "" || matches[0].Content != "untitled chunk" {
		t.Fatalf("matches=%+v, want one untitled match", matches)
	}
}

func TestDeleteDocumentRemovesAllChunks(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		s.AddKnowledgeChunk(KnowledgeChunk{
			Scope: "c", DocumentID: "doc", Content: "chunk", Embedding: []float32{1, 0},
		})
	}

	n, err := s.DeleteDocument("doc")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted=%d, want 3", n)
	}
	count, _ := s.KnowledgeCount("c")
	if count != 0 {
		t.Fatalf("count=%d after delete, want 0", count)
	}
}
