package config

// CacheConfig configures the answer caches and tier routing.
//
// The similarity threshold and relevance floor are policy knobs tuned per
// embedding model and deployment; they are not physical constants.
type CacheConfig struct {
	// Exact tier
	ExactTTL string `yaml:"exact_ttl"` // Default: "24h"

	// Semantic tier
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // Min cosine similarity for a hit (default: 0.95)
	SemanticTTL         string  `yaml:"semantic_ttl"`         // Default: "168h"
	MaxCandidates       int     `yaml:"max_candidates"`       // Neighbors fetched per lookup (default: 50)

	// RAG tiers
	RetrievalTopK  int     `yaml:"retrieval_top_k"` // Passages fetched per generation (default: 3)
	RelevanceFloor float64 `yaml:"relevance_floor"` // Min retrieval score for RAG routing (default: 0.5)

	// Self-consistency check on small-model output
	MinAnswerLength float64 `yaml:"min_answer_length"` // Min answer chars before escalation (default: 40)
	MinOverlapRatio float64 `yaml:"min_overlap_ratio"` // Min keyword overlap with retrieved context (default: 0.1)

	// Confidence floor below which answers are never cached
	MinCacheConfidence float64 `yaml:"min_cache_confidence"` // Default: 0.5
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ExactTTL:            "24h",
		SimilarityThreshold: 0.95,
		SemanticTTL:         "168h",
		MaxCandidates:       50,
		RetrievalTopK:       3,
		RelevanceFloor:      0.5,
		MinAnswerLength:     40,
		MinOverlapRatio:     0.1,
		MinCacheConfidence:  0.5,
	}
}
