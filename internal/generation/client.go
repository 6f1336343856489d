// Package generation provides LLM completion clients for answer generation
// and summarization. Both the small and large providers speak an
// OpenAI-compatible chat completions API.
package generation

import (
	"context"
	"errors"
)

// ErrNoCompletion indicates the provider returned an empty choice list.
var ErrNoCompletion = errors.New("no completion returned")

// =============================================================================
// CLIENT INTERFACE
// =============================================================================

// Completion is one provider response with token accounting.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Client generates completions.
type Client interface {
	// Complete sends a system + user prompt pair and returns the completion.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

	// Model returns the configured model identifier.
	Model() string

	// Cost returns the dollar cost for the given token counts.
	Cost(inputTokens, outputTokens int) float64
}

// =============================================================================
// PROVIDER PAIR
// =============================================================================

// Providers holds the small/large client pair the router escalates across.
type Providers struct {
	Small Client
	Large Client
}
