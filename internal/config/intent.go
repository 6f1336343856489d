package config

// IntentConfig configures the semantic intent classifier.
type IntentConfig struct {
	// Gap between the top two category scores below which the query is
	// treated as ambiguous
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold"` // Default: 0.15

	// Minimum top category score for a classification to be trusted at
	// all; below it the query gets default RAG handling
	RelevanceFloor float64 `yaml:"relevance_floor"` // Default: 0.5

	// Queries at or under this word count are eligible for the
	// session-memory reference-cue override
	ShortQueryWords int `yaml:"short_query_words"` // Default: 5

	// Extra reference cues beyond the built-in set
	ExtraReferenceCues []string `yaml:"extra_reference_cues"`
}

// DefaultIntentConfig returns sensible defaults.
func DefaultIntentConfig() IntentConfig {
	return IntentConfig{
		AmbiguityThreshold: 0.15,
		RelevanceFloor:     0.5,
		ShortQueryWords:    5,
	}
}
