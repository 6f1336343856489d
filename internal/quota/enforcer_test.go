package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"tutorcore/internal/config"
	"tutorcore/internal/faststore"
)

func newTestEnforcer(limits map[string]int64) (*Enforcer, faststore.Store) {
	cfg := config.DefaultQuotaConfig()
	if limits != nil {
		cfg.Limits = limits
	}
	fast := faststore.NewLocalStore(1024)
	return NewEnforcer(cfg, fast), fast
}

func TestCheck_UnderLimitPasses(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{ResourceChatMessages: 50})
	ctx := context.Background()

	denial, err := e.Check(ctx, "u1", ResourceChatMessages)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if denial != nil {
		t.Fatalf("fresh user denied: %+v", denial)
	}
}

func TestCheck_AtLimitDenies(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{ResourceChatMessages: 50})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := e.Consume(ctx, "u1", ResourceChatMessages); err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
	}

	denial, err := e.Check(ctx, "u1", ResourceChatMessages)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if denial == nil {
		t.Fatal("51st message passed despite used=50 limit=50")
	}
	if denial.ExceededResource != ResourceChatMessages || denial.CurrentUsage != 50 || denial.Limit != 50 {
		t.Fatalf("denial = %+v, want chatMessages 50/50", denial)
	}
	if denial.SuggestedAction == "" {
		t.Fatal("denial missing suggested action")
	}
}

func TestCheck_UncappedResourceAlwaysPasses(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{ResourceChatMessages: 1})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := e.Consume(ctx, "u1", "previewRenders"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	denial, err := e.Check(ctx, "u1", "previewRenders")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if denial != nil {
		t.Fatalf("uncapped resource denied: %+v", denial)
	}
}

func TestConsume_NeverExceedsLimitUnderConcurrency(t *testing.T) {
	e, fast := newTestEnforcer(map[string]int64{ResourceChatMessages: 30})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Consume(ctx, "u1", ResourceChatMessages)
		}()
	}
	wg.Wait()

	key := e.counterKey("u1", ResourceChatMessages, e.periodStart(e.now()))
	used, err := fast.GetCounter(ctx, key)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if used != 30 {
		t.Fatalf("counter=%d after 100 concurrent consumes, must saturate at limit 30", used)
	}
}

func TestReserveAndRefund(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{ResourceLargeModelCalls: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		denial, err := e.Reserve(ctx, "u1", ResourceLargeModelCalls)
		if err != nil || denial != nil {
			t.Fatalf("Reserve %d: err=%v denial=%+v", i, err, denial)
		}
	}
	denial, err := e.Reserve(ctx, "u1", ResourceLargeModelCalls)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if denial == nil {
		t.Fatal("third reserve passed with limit 2")
	}

	if err := e.Refund(ctx, "u1", ResourceLargeModelCalls); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	denial, err = e.Reserve(ctx, "u1", ResourceLargeModelCalls)
	if err != nil || denial != nil {
		t.Fatalf("reserve after refund: err=%v denial=%+v", err, denial)
	}
}

func TestUsageReport(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{
		ResourceChatMessages: 50,
		ResourceRAGQueries:   200,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := e.Consume(ctx, "u1", ResourceChatMessages); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}

	report, err := e.UsageReport(ctx, "u1")
	if err != nil {
		t.Fatalf("UsageReport: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("report has %d rows, want 2", len(report))
	}
	byResource := make(map[string]Usage)
	for _, u := range report {
		byResource[u.Resource] = u
	}
	if byResource[ResourceChatMessages].Used != 3 {
		t.Fatalf("chatMessages used=%d, want 3", byResource[ResourceChatMessages].Used)
	}
	if byResource[ResourceRAGQueries].Used != 0 {
		t.Fatalf("ragQueries used=%d, want 0", byResource[ResourceRAGQueries].Used)
	}
	if !byResource[ResourceChatMessages].PeriodEnd.After(byResource[ResourceChatMessages].PeriodStart) {
		t.Fatal("period end must follow period start")
	}
}

func TestNewPeriodReadsZero(t *testing.T) {
	e, _ := newTestEnforcer(map[string]int64{ResourceChatMessages: 5})
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		if err := e.Consume(ctx, "u1", ResourceChatMessages); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	if denial, _ := e.Check(ctx, "u1", ResourceChatMessages); denial == nil {
		t.Fatal("expected denial at limit in first period")
	}

	// Advance past the period boundary: fresh counter, no reset write needed.
	e.now = func() time.Time { return base.Add(e.period + time.Minute) }
	denial, err := e.Check(ctx, "u1", ResourceChatMessages)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if denial != nil {
		t.Fatalf("new period denied: %+v", denial)
	}
}

func TestRollover_IdempotentAndLeavesCurrentPeriod(t *testing.T) {
	e, fast := newTestEnforcer(map[string]int64{ResourceChatMessages: 50})
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	for i := 0; i < 10; i++ {
		if err := e.Consume(ctx, "u1", ResourceChatMessages); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}

	// Seed a stale counter one period back.
	staleKey := e.counterKey("u1", ResourceChatMessages, e.periodStart(base).Add(-e.period))
	if _, _, err := fast.IncrWithCeiling(ctx, staleKey, 42, 50, time.Hour); err != nil {
		t.Fatalf("seed stale counter: %v", err)
	}

	if err := e.Rollover(ctx, []string{"u1"}); err != nil {
		t.Fatalf("Rollover: %v", err)
	}
	if err := e.Rollover(ctx, []string{"u1"}); err != nil {
		t.Fatalf("second Rollover: %v", err)
	}

	if stale, _ := fast.GetCounter(ctx, staleKey); stale != 0 {
		t.Fatalf("stale counter=%d after rollover, want dropped", stale)
	}
	currentKey := e.counterKey("u1", ResourceChatMessages, e.periodStart(base))
	if used, _ := fast.GetCounter(ctx, currentKey); used != 10 {
		t.Fatalf("current counter=%d after rollover, want 10 untouched", used)
	}
}
