package config

// SessionConfig configures conversation context building.
type SessionConfig struct {
	// Max tokens the rendered context may occupy
	MaxTokensPerContext int `yaml:"max_tokens_per_context"` // Default: 2000

	// How many messages to pull from the authoritative log on cache miss
	MaxMessagesInContext int `yaml:"max_messages_in_context"` // Default: 10

	// Most recent messages always rendered verbatim
	RecentMessagesVerbatim int `yaml:"recent_messages_verbatim"` // Default: 3

	// Older-message count above which summarization triggers
	SummarizationThreshold int `yaml:"summarization_threshold"` // Default: 5

	// Sliding TTL for cached SessionContexts
	SessionTTL string `yaml:"session_ttl"` // Default: "1h"

	// Bound on the process-local fallback map when the fast store is down
	LocalFallbackSize int `yaml:"local_fallback_size"` // Default: 4096
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTokensPerContext:    2000,
		MaxMessagesInContext:   10,
		RecentMessagesVerbatim: 3,
		SummarizationThreshold: 5,
		SessionTTL:             "1h",
		LocalFallbackSize:      4096,
	}
}
