package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tutorcore/internal/generation"
	"tutorcore/internal/logging"
)

// =============================================================================
// CALL SCHEDULER
// =============================================================================
//
// The scheduler bounds concurrent generation provider calls independently of
// turn concurrency. Many turns can be in flight, but only MaxConcurrentCalls
// of them hold a provider slot at once; cached turns never need one.

// CallScheduler is a counting semaphore over provider call slots.
type CallScheduler struct {
	slots   chan struct{}
	timeout time.Duration

	totalCalls int64
	totalWait  int64 // nanoseconds spent waiting for slots
}

// NewCallScheduler creates a scheduler with the given slot count.
func NewCallScheduler(maxConcurrent int, acquireTimeout time.Duration) *CallScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 2 * time.Minute
	}
	return &CallScheduler{
		slots:   make(chan struct{}, maxConcurrent),
		timeout: acquireTimeout,
	}
}

// Acquire blocks until a slot is free, the context is done, or the acquire
// timeout elapses. The caller must Release after its provider call returns.
func (s *CallScheduler) Acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case s.slots <- struct{}{}:
	default:
		// Contended path: wait with timeout.
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timed out waiting %s for a provider call slot", s.timeout)
		}
	}
	atomic.AddInt64(&s.totalCalls, 1)
	atomic.AddInt64(&s.totalWait, int64(time.Since(start)))
	return nil
}

// Release returns a slot.
func (s *CallScheduler) Release() {
	select {
	case <-s.slots:
	default:
		logging.APIWarn("Release without matching Acquire")
	}
}

// InFlight returns the number of slots currently held.
func (s *CallScheduler) InFlight() int {
	return len(s.slots)
}

// Stats returns total scheduled calls and cumulative slot wait time.
func (s *CallScheduler) Stats() (calls int64, waited time.Duration) {
	return atomic.LoadInt64(&s.totalCalls), time.Duration(atomic.LoadInt64(&s.totalWait))
}

// =============================================================================
// SLOTTED CLIENT
// =============================================================================

// SlottedClient wraps a generation client so every completion holds a
// scheduler slot for the duration of the remote call. Cache hits upstream
// never reach the client, so they never consume a slot.
type SlottedClient struct {
	inner generation.Client
	sched *CallScheduler
}

// NewSlottedClient wraps client with the scheduler.
func NewSlottedClient(client generation.Client, sched *CallScheduler) *SlottedClient {
	return &SlottedClient{inner: client, sched: sched}
}

func (c *SlottedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (*generation.Completion, error) {
	if err := c.sched.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("provider call not scheduled: %w", err)
	}
	defer c.sched.Release()
	return c.inner.Complete(ctx, systemPrompt, userPrompt)
}

func (c *SlottedClient) Model() string { return c.inner.Model() }

func (c *SlottedClient) Cost(inputTokens, outputTokens int) float64 {
	return c.inner.Cost(inputTokens, outputTokens)
}
