package config

// EmbeddingConfig configures the vector embedding gateway.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider" json:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`       // Default: "all-minilm"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"` // Default: "gemini-embedding-001"

	// Dimensions of the embedding space. All stored vectors must match.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Gateway cache and batching
	CacheSize   int    `yaml:"cache_size" json:"cache_size"`     // Exact-text LRU entries (default: 2048)
	BatchWindow string `yaml:"batch_window" json:"batch_window"` // Coalescing window (default: "10ms")
	MaxBatch    int    `yaml:"max_batch" json:"max_batch"`       // Max texts per provider batch (default: 32)

	// Retry policy before raising ErrUnavailable
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff" json:"retry_backoff"`
}

// DefaultEmbeddingConfig returns sensible defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "all-minilm",
		GenAIModel:     "gemini-embedding-001",
		Dimensions:     384,
		CacheSize:      2048,
		BatchWindow:    "10ms",
		MaxBatch:       32,
		MaxRetries:     2,
		RetryBackoff:   "200ms",
	}
}
