package memory

import (
	"testing"
	"time"
)

func testParams() ImportanceParams {
	return ImportanceParams{
		HalfLife:       336 * time.Hour,
		FrequencyScale: 0.3,
		RecencyWeight:  0.6,
	}
}

func TestImportance_FlaggedPinsAtOne(t *testing.T) {
	now := time.Now()
	ancient := now.Add(-10000 * time.Hour)
	if got := Importance(ancient, 1, true, now, testParams()); got != 1.0 {
		t.Fatalf("flagged importance=%v, want 1.0 regardless of age", got)
	}
}

func TestImportance_MonotonicInAccessCount(t *testing.T) {
	now := time.Now()
	last := now.Add(-48 * time.Hour)
	p := testParams()

	prev := -1.0
	for count := 1; count <= 50; count++ {
		score := Importance(last, count, false, now, p)
		if score < prev {
			t.Fatalf("importance dropped from %v to %v at accessCount=%d", prev, score, count)
		}
		if score < 0 || score > 1 {
			t.Fatalf("importance %v out of [0,1] at accessCount=%d", score, count)
		}
		prev = score
	}
}

func TestImportance_DecaysWithAge(t *testing.T) {
	now := time.Now()
	p := testParams()

	fresh := Importance(now.Add(-1*time.Hour), 3, false, now, p)
	stale := Importance(now.Add(-2000*time.Hour), 3, false, now, p)
	if stale >= fresh {
		t.Fatalf("stale=%v fresh=%v, older last access must score lower", stale, fresh)
	}
}

func TestImportance_HalfLifeHalvesRecency(t *testing.T) {
	now := time.Now()
	p := testParams()
	p.RecencyWeight = 1.0 // isolate the recency term

	atZero := Importance(now, 1, false, now, p)
	atHalf := Importance(now.Add(-p.HalfLife), 1, false, now, p)
	if diff := atHalf - atZero/2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("recency at one half-life = %v, want %v", atHalf, atZero/2)
	}
}

func TestImportance_FutureLastAccessClamped(t *testing.T) {
	now := time.Now()
	got := Importance(now.Add(time.Hour), 1, false, now, testParams())
	want := Importance(now, 1, false, now, testParams())
	if got != want {
		t.Fatalf("future last access scored %v, want clamped to %v", got, want)
	}
}
