package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tutorcore/internal/config"
	"tutorcore/internal/faststore"
	"tutorcore/internal/generation"
	"tutorcore/internal/retrieval"
	"tutorcore/internal/store"
)

type routerFixture struct {
	router *Router
	local  *store.LocalStore
	fast   *faststore.LocalStore
	small  *generation.MockClient
	large  *generation.MockClient
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	local, err := store.NewLocalStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	fast := faststore.NewLocalStore(256)
	small := &generation.MockClient{
		ModelName: "small",
		Response:  "Recursion is when a function calls itself until a base case stops it.",
		CostIn1K:  0.001, CostOut1K: 0.002,
	}
	large := &generation.MockClient{
		ModelName: "large",
		Response:  "Recursion is a technique where a function calls itself, with a base case to terminate.",
		CostIn1K:  0.01, CostOut1K: 0.02,
	}

	router := NewRouter(config.DefaultCacheConfig(), fast, local, retrieval.NewStoreIndex(local), generation.Providers{Small: small, Large: large})
	return &routerFixture{router: router, local: local, fast: fast, small: small, large: large}
}

func knowledgeReq(query string) Request {
	return Request{
		Query:      query,
		Embedding:  []float32{1, 0, 0},
		UserID:     "u1",
		SessionID:  "s1",
		Scope:      "course:cs101",
		Confidence: 0.8,
	}
}

func (f *routerFixture) seedPassage(t *testing.T) {
	t.Helper()
	_, err := f.local.AddKnowledgeChunk(store.KnowledgeChunk{
		Scope: "course:cs101", DocumentID: "d1", Title: "Recursion",
		Content:   "Recursion means a function calls itself with a smaller input until a base case is reached.",
		Embedding: []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("AddKnowledgeChunk: %v", err)
	}
}

func TestResolve_RepeatQueryServedFromCache(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	ctx := context.Background()

	first, err := f.router.Resolve(ctx, knowledgeReq("Explain recursion"))
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if first.Tier.Cached() {
		t.Fatalf("first resolution tier=%s, want a generation tier", first.Tier)
	}
	if first.EstimatedCost <= 0 {
		t.Fatalf("generation tier cost=%v, want > 0", first.EstimatedCost)
	}

	callsAfterFirst := f.small.CallCount() + f.large.CallCount()
	second, err := f.router.Resolve(ctx, knowledgeReq("Explain recursion"))
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !second.Tier.Cached() {
		t.Fatalf("second resolution tier=%s, want exact or semantic", second.Tier)
	}
	if second.Answer != first.Answer {
		t.Fatalf("cached answer differs")
	}
	if second.EstimatedCost != 0 {
		t.Fatalf("cached tier cost=%v, want 0", second.EstimatedCost)
	}
	if f.small.CallCount()+f.large.CallCount() != callsAfterFirst {
		t.Fatal("cached resolution reached a generation provider")
	}
}

func TestResolve_ExactMatchesNormalizedText(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	ctx := context.Background()

	if _, err := f.router.Resolve(ctx, knowledgeReq("Explain recursion")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Same words, different case/whitespace/punctuation.
	res, err := f.router.Resolve(ctx, knowledgeReq("  explain   Recursion?"))
	if err != nil {
		t.Fatalf("Resolve variant: %v", err)
	}
	if res.Tier != TierExact {
		t.Fatalf("tier=%s, want exact for normalized repeat", res.Tier)
	}
}

func TestResolve_SemanticHitForSimilarQuestion(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	ctx := context.Background()

	if _, err := f.router.Resolve(ctx, knowledgeReq("Explain recursion")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Different wording (exact miss), near-identical embedding.
	req := knowledgeReq("What does recursion mean")
	req.Embedding = []float32{0.999, 0.01, 0}
	res, err := f.router.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve similar: %v", err)
	}
	if res.Tier != TierSemantic {
		t.Fatalf("tier=%s, want semantic", res.Tier)
	}
	if res.Annotations["origin_tier"] == "" {
		t.Fatal("semantic hit should carry its originating tier")
	}
}

func TestResolve_ShortAnswerEscalatesToLarge(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	f.small.Response = "Yes."

	res, err := f.router.Resolve(context.Background(), knowledgeReq("Explain recursion"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierRAGLarge {
		t.Fatalf("tier=%s, want rag-large after short answer", res.Tier)
	}
	if res.Annotations["escalated"] != "true" {
		t.Fatalf("annotations=%v, want escalated marker", res.Annotations)
	}
	if f.small.CallCount() != 1 || f.large.CallCount() != 1 {
		t.Fatalf("calls small=%d large=%d, want 1/1", f.small.CallCount(), f.large.CallCount())
	}
}

func TestResolve_OffTopicAnswerEscalates(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	f.small.Response = "The mitochondria is the powerhouse of the cell and produces energy through respiration."

	res, err := f.router.Resolve(context.Background(), knowledgeReq("Explain recursion"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierRAGLarge {
		t.Fatalf("tier=%s, want rag-large when answer ignores retrieved context", res.Tier)
	}
}

func TestResolve_HighStakesSkipsSmallModel(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)

	req := knowledgeReq("Explain recursion")
	req.HighStakes = true
	res, err := f.router.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierRAGLarge {
		t.Fatalf("tier=%s, want rag-large", res.Tier)
	}
	if f.small.CallCount() != 0 {
		t.Fatal("high-stakes query should not touch the small model")
	}
}

func TestResolve_LowConfidenceAnswersNotCached(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)
	ctx := context.Background()

	req := knowledgeReq("Explain recursion")
	req.Confidence = 0.3
	if _, err := f.router.Resolve(ctx, req); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	res, err := f.router.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if res.Tier.Cached() {
		t.Fatalf("tier=%s, low-confidence answers must not be served from cache", res.Tier)
	}
}

func TestResolve_BothModelsDownReturnsGenerationError(t *testing.T) {
	f := newRouterFixture(t)
	fail := func(ctx context.Context, system, user string) (*generation.Completion, error) {
		return nil, errors.New("provider outage")
	}
	f.small.CompleteFunc = fail
	f.large.CompleteFunc = fail

	_, err := f.router.Resolve(context.Background(), knowledgeReq("Explain recursion"))
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err=%v, want *GenerationError", err)
	}
	if genErr.Tier != TierRAGLarge || genErr.Reason == "" {
		t.Fatalf("genErr=%+v, want annotated large-tier failure", genErr)
	}
}

func TestConverse_NoRetrievalNoCaching(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	req := knowledgeReq("Tell me something encouraging")
	res, err := f.router.Converse(ctx, req)
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if res.Tier != TierRAGSmall || res.Annotations["mode"] != "conversational" {
		t.Fatalf("res=%+v, want conversational small-model resolution", res)
	}

	// Conversational answers never enter the exact cache.
	repeat, err := f.router.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve after Converse: %v", err)
	}
	if repeat.Tier == TierExact {
		t.Fatal("conversational answer leaked into the exact cache")
	}
}

func TestResolve_NilEmbeddingStillAnswers(t *testing.T) {
	f := newRouterFixture(t)
	f.seedPassage(t)

	req := knowledgeReq("Explain recursion")
	req.Embedding = nil
	res, err := f.router.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve without embedding: %v", err)
	}
	if res.Answer == "" {
		t.Fatal("expected an answer even with the embedding gateway down")
	}
	// No embedding, so no semantic write-back; exact cache still works.
	repeat, err := f.router.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("repeat Resolve: %v", err)
	}
	if repeat.Tier != TierExact {
		t.Fatalf("tier=%s, want exact on verbatim repeat", repeat.Tier)
	}
}

func TestNormalizeQuery(t *testing.T) {
	if NormalizeQuery("  Explain   Recursion?") != "explain recursion" {
		t.Fatalf("normalize=%q", NormalizeQuery("  Explain   Recursion?"))
	}
	if QueryHash("Explain Recursion?") != QueryHash("explain recursion") {
		t.Fatal("hash must be normalization-invariant")
	}
}
