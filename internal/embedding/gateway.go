package embedding

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tutorcore/internal/config"
	"tutorcore/internal/logging"
)

// ErrUnavailable is returned when the embedding provider cannot be reached
// after the retry budget is exhausted. Callers must degrade: the semantic
// cache and RAG tiers are off the table for that request, exact-cache and
// plain chat remain usable.
var ErrUnavailable = errors.New("embedding provider unavailable")

// =============================================================================
// EMBEDDING GATEWAY
// =============================================================================

// Gateway fronts an Engine with an exact-text LRU cache, coalescing of
// concurrent requests into provider batches, and a fixed retry budget.
// Identical texts always produce identical vectors, so caching is safe.
type Gateway struct {
	engine Engine

	maxRetries  int
	backoff     time.Duration
	batchWindow time.Duration
	maxBatch    int
	callTimeout time.Duration

	mu        sync.Mutex
	cacheSize int
	entries   map[string]*list.Element
	order     *list.List // front = most recently used
	pending   map[string][]chan batchResult
	flushArm  *time.Timer

	// Metrics
	hits   int64
	misses int64
}

type cacheEntry struct {
	text   string
	vector []float32
}

type batchResult struct {
	vector []float32
	err    error
}

// NewGateway creates a gateway around an engine.
func NewGateway(engine Engine, cfg config.EmbeddingConfig) *Gateway {
	window, err := time.ParseDuration(cfg.BatchWindow)
	if err != nil || window <= 0 {
		window = 10 * time.Millisecond
	}
	backoff, err := time.ParseDuration(cfg.RetryBackoff)
	if err != nil || backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 2048
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 32
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 2
	}

	return &Gateway{
		engine:      engine,
		maxRetries:  retries,
		backoff:     backoff,
		batchWindow: window,
		maxBatch:    maxBatch,
		callTimeout: 30 * time.Second,
		cacheSize:   size,
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		pending:     make(map[string][]chan batchResult),
	}
}

// Dimensions returns the engine's embedding dimensionality.
func (g *Gateway) Dimensions() int {
	return g.engine.Dimensions()
}

// Name returns the wrapped engine name.
func (g *Gateway) Name() string {
	return fmt.Sprintf("gateway(%s)", g.engine.Name())
}

// Embed returns the vector for text, serving repeats from the LRU and
// folding concurrent misses into one provider batch.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	g.mu.Lock()
	if vec, ok := g.cacheGetLocked(text); ok {
		g.mu.Unlock()
		atomic.AddInt64(&g.hits, 1)
		return vec, nil
	}
	atomic.AddInt64(&g.misses, 1)

	ch := make(chan batchResult, 1)
	g.pending[text] = append(g.pending[text], ch)

	// First miss arms the window; a full window flushes early.
	if len(g.pending) == 1 && g.flushArm == nil {
		g.flushArm = time.AfterFunc(g.batchWindow, g.flush)
	} else if len(g.pending) >= g.maxBatch {
		if g.flushArm != nil {
			g.flushArm.Stop()
			g.flushArm = nil
		}
		go g.flush()
	}
	g.mu.Unlock()

	select {
	case res := <-ch:
		return res.vector, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch embeds many texts at once, serving cached entries and batching
// the rest directly (no coalescing window; the caller already batched).
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	g.mu.Lock()
	for i, text := range texts {
		if vec, ok := g.cacheGetLocked(text); ok {
			vectors[i] = vec
			atomic.AddInt64(&g.hits, 1)
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
			atomic.AddInt64(&g.misses, 1)
		}
	}
	g.mu.Unlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	embedded, err := g.embedWithRetry(ctx, missing)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	for i, vec := range embedded {
		vectors[missingIdx[i]] = vec
		g.cachePutLocked(missing[i], vec)
	}
	g.mu.Unlock()

	return vectors, nil
}

// HealthCheck delegates to the engine when supported.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	if hc, ok := g.engine.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Stats returns cache hit/miss counts.
func (g *Gateway) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&g.hits), atomic.LoadInt64(&g.misses)
}

// Close flushes any armed batch window.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.flushArm != nil {
		g.flushArm.Stop()
		g.flushArm = nil
	}
	g.mu.Unlock()
	g.flush()
}

// flush sends the pending batch to the provider and delivers results.
func (g *Gateway) flush() {
	g.mu.Lock()
	g.flushArm = nil
	if len(g.pending) == 0 {
		g.mu.Unlock()
		return
	}
	batch := g.pending
	g.pending = make(map[string][]chan batchResult)
	g.mu.Unlock()

	texts := make([]string, 0, len(batch))
	for text := range batch {
		texts = append(texts, text)
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "Gateway.flush")
	defer timer.Stop()
	logging.EmbeddingDebug("Flushing embedding batch of %d texts", len(texts))

	// The flush runs detached from any caller context; waiters observe their
	// own cancellation independently.
	ctx, cancel := context.WithTimeout(context.Background(), g.callTimeout)
	defer cancel()

	vectors, err := g.embedWithRetry(ctx, texts)
	if err != nil {
		for _, waiters := range batch {
			for _, ch := range waiters {
				ch <- batchResult{err: err}
			}
		}
		return
	}

	g.mu.Lock()
	for i, text := range texts {
		g.cachePutLocked(text, vectors[i])
	}
	g.mu.Unlock()

	for i, text := range texts {
		for _, ch := range batch[text] {
			ch <- batchResult{vector: vectors[i]}
		}
	}
}

// embedWithRetry calls the engine with the configured retry budget.
func (g *Gateway) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
			logging.EmbeddingWarn("Retrying embed batch (attempt %d/%d): %v", attempt+1, g.maxRetries+1, lastErr)
		}

		vectors, err := g.engine.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("engine returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// =============================================================================
// LRU (callers hold g.mu)
// =============================================================================

func (g *Gateway) cacheGetLocked(text string) ([]float32, bool) {
	elem, ok := g.entries[text]
	if !ok {
		return nil, false
	}
	g.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vector, true
}

func (g *Gateway) cachePutLocked(text string, vector []float32) {
	if elem, ok := g.entries[text]; ok {
		elem.Value.(*cacheEntry).vector = vector
		g.order.MoveToFront(elem)
		return
	}
	g.entries[text] = g.order.PushFront(&cacheEntry{text: text, vector: vector})
	for g.order.Len() > g.cacheSize {
		oldest := g.order.Back()
		g.order.Remove(oldest)
		delete(g.entries, oldest.Value.(*cacheEntry).text)
	}
}
