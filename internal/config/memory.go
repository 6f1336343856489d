package config

// MemoryConfig configures the long-term memory ledger.
type MemoryConfig struct {
	// SQLite storage
	DatabasePath string `yaml:"database_path"`

	// Importance scoring
	HalfLife       string  `yaml:"half_life"`       // Recency decay half-life (default: "336h" = 14 days)
	FrequencyScale float64 `yaml:"frequency_scale"` // Saturation rate of the access-count boost (default: 0.3)
	RecencyWeight  float64 `yaml:"recency_weight"`  // Blend between recency and frequency (default: 0.6)

	// Archival sweep
	ImportanceFloor float64 `yaml:"importance_floor"` // Entries under this are archival candidates (default: 0.2)
	RetentionWindow string  `yaml:"retention_window"` // Min age before archival (default: "2160h" = 90 days)

	// Ingest
	IngestDelay      string  `yaml:"ingest_delay"`      // Only turns older than this are extracted (default: "24h")
	DedupSimilarity  float64 `yaml:"dedup_similarity"`  // Embedding similarity merge threshold (default: 0.9)
	DedupOverlap     float64 `yaml:"dedup_overlap"`     // Token-overlap merge threshold fallback (default: 0.8)
	IngestBatchLimit int     `yaml:"ingest_batch_size"` // Max turns per ingest batch (default: 200)
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DatabasePath:     "data/tutorcore.db",
		HalfLife:         "336h",
		FrequencyScale:   0.3,
		RecencyWeight:    0.6,
		ImportanceFloor:  0.2,
		RetentionWindow:  "2160h",
		IngestDelay:      "24h",
		DedupSimilarity:  0.9,
		DedupOverlap:     0.8,
		IngestBatchLimit: 200,
	}
}
