package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.MaxTokensPerContext != 2000 {
		t.Fatalf("MaxTokensPerContext=%d, want 2000", cfg.Session.MaxTokensPerContext)
	}
	if cfg.Cache.SimilarityThreshold != 0.95 {
		t.Fatalf("SimilarityThreshold=%v, want 0.95", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Quota.Limits["chatMessages"] != 50 {
		t.Fatalf("chatMessages limit=%d, want 50", cfg.Quota.Limits["chatMessages"])
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("cache:\n  similarity_threshold: 0.92\nsession:\n  max_tokens_per_context: 1500\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.SimilarityThreshold != 0.92 {
		t.Fatalf("SimilarityThreshold=%v, want 0.92", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Session.MaxTokensPerContext != 1500 {
		t.Fatalf("MaxTokensPerContext=%d, want 1500", cfg.Session.MaxTokensPerContext)
	}
	// Untouched sections keep defaults.
	if cfg.Cache.RelevanceFloor != 0.5 {
		t.Fatalf("RelevanceFloor=%v, want default 0.5", cfg.Cache.RelevanceFloor)
	}
	if cfg.Session.RecentMessagesVerbatim != 3 {
		t.Fatalf("RecentMessagesVerbatim=%d, want default 3", cfg.Session.RecentMessagesVerbatim)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TUTORD_LLM_API_KEY", "sk-both")
	t.Setenv("TUTORD_LLM_LARGE_API_KEY", "sk-large")
	t.Setenv("TUTORD_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Small.APIKey != "sk-both" {
		t.Fatalf("small key=%q", cfg.LLM.Small.APIKey)
	}
	if cfg.LLM.Large.APIKey != "sk-large" {
		t.Fatalf("large key=%q, specific override should win", cfg.LLM.Large.APIKey)
	}
	if cfg.FastStore.Addr != "redis.internal:6380" {
		t.Fatalf("redis addr=%q", cfg.FastStore.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Cache.RetrievalTopK = 5

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Cache.RetrievalTopK != 5 {
		t.Fatalf("RetrievalTopK=%d, want 5", loaded.Cache.RetrievalTopK)
	}
}
