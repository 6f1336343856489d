package config

// LLMConfig configures the small/large generation providers.
// Both speak an OpenAI-compatible chat completions API; only the model and
// cost differ. Timeouts and retry budgets are per provider because the large
// model needs substantially longer deadlines.
type LLMConfig struct {
	Small ProviderConfig `yaml:"small"`
	Large ProviderConfig `yaml:"large"`

	// Summarizer defaults to the small provider when empty.
	SummarizerModel string `yaml:"summarizer_model"`
}

// ProviderConfig configures one generation provider endpoint.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// MaxRetries bounds the retry loop for 429/transport errors.
	MaxRetries int `yaml:"max_retries"`

	// MaxTokens caps the response size.
	MaxTokens int `yaml:"max_tokens"`

	// Cost per 1K tokens, used for per-turn cost estimates.
	CostPer1KInput  float64 `yaml:"cost_per_1k_input"`
	CostPer1KOutput float64 `yaml:"cost_per_1k_output"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Small: ProviderConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			Timeout:         "60s",
			MaxRetries:      3,
			MaxTokens:       1024,
			CostPer1KInput:  0.00015,
			CostPer1KOutput: 0.0006,
		},
		Large: ProviderConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o",
			Timeout:         "120s",
			MaxRetries:      3,
			MaxTokens:       2048,
			CostPer1KInput:  0.0025,
			CostPer1KOutput: 0.01,
		},
	}
}
