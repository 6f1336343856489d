package faststore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(16)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err=%v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := s.Get(ctx, "k")
	if err != nil || val != "v" {
		t.Fatalf("Get=%q/%v", val, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key err=%v, want ErrNotFound", err)
	}
}

func TestLocalStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(16)

	if err := s.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired key err=%v, want ErrNotFound", err)
	}
}

func TestLocalStore_SlidingExpire(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(16)

	if err := s.Set(ctx, "session", "ctx", 30*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Expire(ctx, "session", 50*time.Millisecond); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// Would have expired without the slide.
	if _, err := s.Get(ctx, "session"); err != nil {
		t.Fatalf("Get after slide: %v", err)
	}
}

func TestIncrWithCeiling_StopsAtCeiling(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(16)

	for i := int64(1); i <= 3; i++ {
		current, applied, err := s.IncrWithCeiling(ctx, "quota", 1, 3, time.Minute)
		if err != nil || !applied {
			t.Fatalf("incr %d: current=%d applied=%v err=%v", i, current, applied, err)
		}
		if current != i {
			t.Fatalf("current=%d, want %d", current, i)
		}
	}

	current, applied, err := s.IncrWithCeiling(ctx, "quota", 1, 3, time.Minute)
	if err != nil {
		t.Fatalf("incr past ceiling: %v", err)
	}
	if applied || current != 3 {
		t.Fatalf("past ceiling: current=%d applied=%v, want 3/false", current, applied)
	}
}

func TestIncrWithCeiling_ConcurrentNeverExceeds(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(16)

	const ceiling = 50
	const workers = 200

	var appliedCount int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := s.IncrWithCeiling(ctx, "quota", 1, ceiling, time.Minute)
			if err != nil {
				t.Errorf("incr: %v", err)
			}
			if applied {
				atomic.AddInt64(&appliedCount, 1)
			}
		}()
	}
	wg.Wait()

	if appliedCount != ceiling {
		t.Fatalf("applied=%d, want exactly %d", appliedCount, ceiling)
	}
	final, err := s.GetCounter(ctx, "quota")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if final != ceiling {
		t.Fatalf("counter=%d, want %d", final, ceiling)
	}
}

func TestLocalStore_BoundedSize(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(8)

	for i := 0; i < 100; i++ {
		if err := s.Set(ctx, fmt.Sprintf("k%d", i), "v", 0); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}

	s.mu.Lock()
	size := len(s.entries)
	s.mu.Unlock()
	if size > 8 {
		t.Fatalf("store grew to %d entries, bound is 8", size)
	}
}
