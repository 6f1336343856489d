package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tutorcore/internal/config"
	"tutorcore/internal/embedding"
	"tutorcore/internal/logging"
)

// Embedder is the slice of the embedding gateway the classifier needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// builtinReferenceCues mark short queries that point back at earlier turns.
var builtinReferenceCues = []string{
	"that", "it", "this", "those", "them",
	"continue", "more", "again", "previous", "earlier", "before",
	"you said", "last time", "keep going",
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier scores queries against per-category exemplar embeddings.
type Classifier struct {
	embedder Embedder
	cfg      config.IntentConfig

	mu        sync.RWMutex
	exemplars map[Intent][]string
	vectors   map[Intent][][]float32
	cues      []string
	started   bool
}

// NewClassifier creates a classifier. Call Start before Classify.
func NewClassifier(embedder Embedder, cfg config.IntentConfig) *Classifier {
	if cfg.AmbiguityThreshold <= 0 {
		cfg.AmbiguityThreshold = 0.15
	}
	if cfg.RelevanceFloor <= 0 {
		cfg.RelevanceFloor = 0.5
	}
	if cfg.ShortQueryWords <= 0 {
		cfg.ShortQueryWords = 5
	}

	cues := make([]string, 0, len(builtinReferenceCues)+len(cfg.ExtraReferenceCues))
	cues = append(cues, builtinReferenceCues...)
	cues = append(cues, cfg.ExtraReferenceCues...)

	return &Classifier{
		embedder:  embedder,
		cfg:       cfg,
		exemplars: defaultExemplars(),
		cues:      cues,
	}
}

// Start embeds the exemplar corpus. Safe to call again after a failure.
func (c *Classifier) Start(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryIntent, "Classifier.Start")
	defer timer.Stop()

	c.mu.RLock()
	exemplars := c.exemplars
	c.mu.RUnlock()

	// Stable order so batch indices map back to categories.
	categories := make([]Intent, 0, len(exemplars))
	for cat := range exemplars {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var texts []string
	var owners []Intent
	for _, cat := range categories {
		for _, ex := range exemplars[cat] {
			texts = append(texts, ex)
			owners = append(owners, cat)
		}
	}

	embeds, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed exemplar corpus: %w", err)
	}

	vectors := make(map[Intent][][]float32, len(exemplars))
	for i, vec := range embeds {
		vectors[owners[i]] = append(vectors[owners[i]], vec)
	}

	c.mu.Lock()
	c.vectors = vectors
	c.started = true
	c.mu.Unlock()

	logging.Intent("Classifier started with %d exemplars across %d categories", len(texts), len(vectors))
	return nil
}

// Classify returns the handling category for a query. hasHistory reports
// whether the session already contains earlier turns.
//
// Classification failures never propagate: the query falls back to RAG
// handling with Fallback set, and the caller routes normally.
func (c *Classifier) Classify(ctx context.Context, query string, hasHistory bool) Classification {
	timer := logging.StartTimer(logging.CategoryIntent, "Classifier.Classify")
	defer timer.Stop()

	// Short follow-ups like "explain that again" score poorly against every
	// exemplar; the reference-cue check catches them before any embedding.
	if hasHistory && c.isReferenceFollowUp(query) {
		logging.IntentDebug("Reference-cue override: %q -> session_memory", truncate(query, 60))
		return Classification{Intent: IntentSessionMemory, Confidence: 0.9}
	}

	c.mu.RLock()
	started := c.started
	vectors := c.vectors
	c.mu.RUnlock()

	if !started {
		logging.Intent("Classifier not started, defaulting to RAG handling")
		return Classification{Intent: IntentRAG, Fallback: true, Reason: "classifier not started"}
	}

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		logging.Intent("Query embedding failed (%v), defaulting to RAG handling", err)
		return Classification{Intent: IntentRAG, Fallback: true, Reason: "embedding unavailable"}
	}

	type scored struct {
		intent Intent
		score  float64
	}
	scores := make([]scored, 0, len(vectors))
	for cat, exVecs := range vectors {
		best := -1.0
		for _, exVec := range exVecs {
			sim, err := embedding.CosineSimilarity(queryVec, exVec)
			if err != nil {
				continue
			}
			if sim > best {
				best = sim
			}
		}
		scores = append(scores, scored{intent: cat, score: best})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if len(scores) == 0 || scores[0].score < c.cfg.RelevanceFloor {
		logging.IntentDebug("No category above floor for %q, defaulting to RAG", truncate(query, 60))
		return Classification{Intent: IntentRAG, Fallback: true, Reason: "no category above relevance floor"}
	}

	top := scores[0]
	if len(scores) > 1 && top.score-scores[1].score < c.cfg.AmbiguityThreshold {
		logging.IntentDebug("Ambiguous query %q: %s=%.3f vs %s=%.3f",
			truncate(query, 60), top.intent, top.score, scores[1].intent, scores[1].score)
		return Classification{
			Intent:             IntentConversational,
			Confidence:         top.score,
			NeedsClarification: true,
		}
	}

	logging.IntentDebug("Classified %q as %s (%.3f)", truncate(query, 60), top.intent, top.score)
	return Classification{Intent: top.intent, Confidence: top.score}
}

// isReferenceFollowUp reports whether a short query leans on earlier turns.
// Single-word cues match whole words only; "gravity" must not match "it".
func (c *Classifier) isReferenceFollowUp(query string) bool {
	lowered := strings.ToLower(query)
	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	if len(words) > c.cfg.ShortQueryWords {
		return false
	}

	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}
	for _, cue := range c.cues {
		if strings.ContainsRune(cue, ' ') {
			if strings.Contains(lowered, cue) {
				return true
			}
		} else if wordSet[cue] {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
