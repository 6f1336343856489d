package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tutorcore/internal/config"
)

// fakeEngine returns deterministic vectors and counts provider calls.
type fakeEngine struct {
	mu        sync.Mutex
	calls     int32
	batches   [][]string
	failFirst int32 // fail this many calls before succeeding
	failAll   bool
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.failAll {
		return nil, errors.New("connection refused")
	}
	if atomic.AddInt32(&f.failFirst, -1) >= 0 {
		return nil, errors.New("transient error")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1, 0}
	}
	return vectors, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

func testGatewayConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		CacheSize:    8,
		BatchWindow:  "5ms",
		MaxBatch:     4,
		MaxRetries:   2,
		RetryBackoff: "1ms",
	}
}

func TestGateway_RepeatTextServedFromCache(t *testing.T) {
	engine := &fakeEngine{failFirst: -1000}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	ctx := context.Background()
	first, err := gw.Embed(ctx, "what is a derivative")
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}

	callsAfterFirst := atomic.LoadInt32(&engine.calls)
	second, err := gw.Embed(ctx, "what is a derivative")
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if atomic.LoadInt32(&engine.calls) != callsAfterFirst {
		t.Fatalf("cached text triggered a provider call")
	}
	if first[0] != second[0] {
		t.Fatalf("cached vector differs: %v vs %v", first, second)
	}

	hits, misses := gw.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats hits=%d misses=%d, want 1/1", hits, misses)
	}
}

func TestGateway_ConcurrentMissesShareOneBatch(t *testing.T) {
	engine := &fakeEngine{failFirst: -1000}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	texts := []string{"alpha", "beta", "gamma"}
	var wg sync.WaitGroup
	errs := make([]error, len(texts)*2)

	// Two callers per text, all within one window.
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gw.Embed(context.Background(), texts[i%len(texts)])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Embed %d: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&engine.calls); calls != 1 {
		t.Fatalf("provider calls=%d, want 1 coalesced batch", calls)
	}
	if len(engine.batches[0]) != len(texts) {
		t.Fatalf("batch size=%d, want %d distinct texts", len(engine.batches[0]), len(texts))
	}
}

func TestGateway_RetryThenSuccess(t *testing.T) {
	engine := &fakeEngine{failFirst: 1}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	vec, err := gw.Embed(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("Embed should recover after retry: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector len=%d, want 3", len(vec))
	}
	if calls := atomic.LoadInt32(&engine.calls); calls != 2 {
		t.Fatalf("provider calls=%d, want 2 (fail + retry)", calls)
	}
}

func TestGateway_ExhaustedRetriesReturnsUnavailable(t *testing.T) {
	engine := &fakeEngine{failAll: true}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	_, err := gw.Embed(context.Background(), "doomed")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want errors.Is(ErrUnavailable)", err)
	}
	// 1 initial + 2 retries.
	if calls := atomic.LoadInt32(&engine.calls); calls != 3 {
		t.Fatalf("provider calls=%d, want 3", calls)
	}
}

func TestGateway_CallerCancellationDoesNotPoisonCache(t *testing.T) {
	engine := &fakeEngine{failFirst: -1000}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Embed(ctx, "cancelled"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}

	// The detached flush still completes; a later caller gets the vector.
	time.Sleep(50 * time.Millisecond)
	if _, err := gw.Embed(context.Background(), "cancelled"); err != nil {
		t.Fatalf("follow-up Embed: %v", err)
	}
}

func TestGateway_LRUEvictsOldest(t *testing.T) {
	engine := &fakeEngine{failFirst: -1000}
	cfg := testGatewayConfig()
	cfg.CacheSize = 2
	gw := NewGateway(engine, cfg)
	defer gw.Close()

	ctx := context.Background()
	for _, text := range []string{"a", "bb", "ccc"} {
		if _, err := gw.Embed(ctx, text); err != nil {
			t.Fatalf("Embed %q: %v", text, err)
		}
	}

	before := atomic.LoadInt32(&engine.calls)
	if _, err := gw.Embed(ctx, "a"); err != nil {
		t.Fatalf("Embed evicted text: %v", err)
	}
	if atomic.LoadInt32(&engine.calls) == before {
		t.Fatal("evicted entry should require a fresh provider call")
	}
}

func TestGateway_EmbedBatchMixesCacheAndProvider(t *testing.T) {
	engine := &fakeEngine{failFirst: -1000}
	gw := NewGateway(engine, testGatewayConfig())
	defer gw.Close()

	ctx := context.Background()
	if _, err := gw.Embed(ctx, "known"); err != nil {
		t.Fatalf("seed Embed: %v", err)
	}

	vectors, err := gw.EmbedBatch(ctx, []string{"known", "fresh"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 || vectors[0] == nil || vectors[1] == nil {
		t.Fatalf("unexpected vectors: %v", vectors)
	}

	// Only the miss goes to the provider.
	engine.mu.Lock()
	last := engine.batches[len(engine.batches)-1]
	engine.mu.Unlock()
	if len(last) != 1 || last[0] != "fresh" {
		t.Fatalf("provider batch=%v, want only the uncached text", last)
	}
}
