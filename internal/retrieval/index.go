// Package retrieval provides scoped document lookup for grounding answers.
// An Index distinguishes "nothing relevant found" (empty result) from
// "the index cannot be reached" (ErrIndexUnavailable) so callers can fall
// back instead of claiming no documents exist.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"tutorcore/internal/logging"
	"tutorcore/internal/store"
)

// ErrIndexUnavailable indicates the index backend failed, as opposed to a
// successful search with no matches.
var ErrIndexUnavailable = errors.New("retrieval index unavailable")

// Match is one retrieved chunk with its relevance score.
type Match struct {
	DocumentID string
	Title      string
	Content    string
	Score      float64
}

// Index searches scoped document chunks by embedding similarity.
type Index interface {
	// Search returns up to topK matches in scope, best first. An empty
	// slice means the search ran and found nothing.
	Search(ctx context.Context, queryEmbedding []float32, scope string, topK int) ([]Match, error)
}

// =============================================================================
// SQLITE-BACKED INDEX
// =============================================================================

// StoreIndex implements Index over the local knowledge store.
type StoreIndex struct {
	store *store.LocalStore
}

// NewStoreIndex creates an index over the local store.
func NewStoreIndex(s *store.LocalStore) *StoreIndex {
	return &StoreIndex{store: s}
}

// Search returns the topK most similar chunks in scope.
func (idx *StoreIndex) Search(ctx context.Context, queryEmbedding []float32, scope string, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryRouting, "StoreIndex.Search")
	defer timer.Stop()

	results, err := idx.store.SearchKnowledge(scope, queryEmbedding, topK)
	if err != nil {
		logging.Get(logging.CategoryRouting).Error("Knowledge search failed for scope %s: %v", scope, err)
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Content:    r.Content,
			Score:      r.Score,
		})
	}
	logging.RoutingDebug("Retrieved %d chunks for scope %s", len(matches), scope)
	return matches, nil
}
