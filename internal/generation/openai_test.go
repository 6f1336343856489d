package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"tutorcore/internal/config"
)

func testProviderConfig(url string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:          "test-key",
		BaseURL:         url,
		Model:           "test-model",
		Timeout:         "5s",
		MaxRetries:      2,
		MaxTokens:       256,
		CostPer1KInput:  0.001,
		CostPer1KOutput: 0.002,
	}
}

func completionBody(text string, in, out int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
		"usage": map[string]any{
			"prompt_tokens":     in,
			"completion_tokens": out,
		},
	}
}

func TestComplete_ParsesTextAndUsage(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(completionBody("A derivative measures rate of change.", 120, 30))
	}))
	defer server.Close()

	client := NewOpenAIClient(testProviderConfig(server.URL))
	result, err := client.Complete(context.Background(), "You are a tutor.", "What is a derivative?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Text != "A derivative measures rate of change." {
		t.Fatalf("text=%q", result.Text)
	}
	if result.InputTokens != 120 || result.OutputTokens != 30 {
		t.Fatalf("usage=%d/%d, want 120/30", result.InputTokens, result.OutputTokens)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header=%q", gotAuth)
	}
}

func TestComplete_RetriesOn429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionBody("ok", 10, 2))
	}))
	defer server.Close()

	client := NewOpenAIClient(testProviderConfig(server.URL))
	result, err := client.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete should recover after 429: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("text=%q", result.Text)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}
}

func TestComplete_NonRetryableStatusFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testProviderConfig(server.URL))
	if _, err := client.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected error for 401")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d, 401 should not be retried", calls)
	}
}

func TestComplete_MissingAPIKey(t *testing.T) {
	cfg := testProviderConfig("http://localhost:1")
	cfg.APIKey = ""
	client := NewOpenAIClient(cfg)
	if _, err := client.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected error when API key is empty")
	}
}

func TestCost(t *testing.T) {
	client := NewOpenAIClient(testProviderConfig("http://localhost:1"))
	got := client.Cost(2000, 500)
	want := 2.0*0.001 + 0.5*0.002
	if got != want {
		t.Fatalf("Cost=%v, want %v", got, want)
	}
}
