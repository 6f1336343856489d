package main

import (
	"testing"

	"tutorcore/internal/config"
)

func TestSummarizerProvider(t *testing.T) {
	llm := config.DefaultLLMConfig()
	if got := summarizerProvider(llm); got.Model != llm.Small.Model {
		t.Fatalf("model=%q, want the small model when no summarizer model is set", got.Model)
	}

	llm.SummarizerModel = "gpt-4o-nano"
	got := summarizerProvider(llm)
	if got.Model != "gpt-4o-nano" {
		t.Fatalf("model=%q, want the configured summarizer model", got.Model)
	}
	if got.BaseURL != llm.Small.BaseURL || got.MaxRetries != llm.Small.MaxRetries {
		t.Fatal("summarizer provider must inherit the small provider's endpoint settings")
	}
}
