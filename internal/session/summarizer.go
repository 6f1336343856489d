package session

import (
	"context"
	"fmt"
	"strings"

	"tutorcore/internal/generation"
)

// LLMSummarizer compresses older turns with one generation call.
type LLMSummarizer struct {
	client generation.Client
}

// NewLLMSummarizer creates a summarizer over a generation client. The small
// model is plenty here.
func NewLLMSummarizer(client generation.Client) *LLMSummarizer {
	return &LLMSummarizer{client: client}
}

const summarizerSystemPrompt = "Summarize the tutoring conversation below in at most three sentences. " +
	"Keep the topics discussed, the student's difficulties, and any commitments made. Output only the summary."

// Summarize compresses the given messages into a short summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, m := range messages {
		transcript.WriteString(renderMessage(m))
	}

	completion, err := s.client.Complete(ctx, summarizerSystemPrompt, transcript.String())
	if err != nil {
		return "", fmt.Errorf("summarization call failed: %w", err)
	}
	return strings.TrimSpace(completion.Text), nil
}
