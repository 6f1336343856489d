// Package jobs schedules the recurring maintenance work: memory ingest,
// the archival sweep, semantic cache purges, and quota rollover. Every job
// takes an explicit cutoff so crashed runs can be replayed idempotently.
package jobs

import (
	"context"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"tutorcore/internal/logging"
	"tutorcore/internal/memory"
	"tutorcore/internal/quota"
	"tutorcore/internal/store"
)

// jobTimeout bounds each scheduled run.
const jobTimeout = 10 * time.Minute

// Schedules, in the scheduler's local time.
const (
	scheduleIngest     = "30 2 * * *" // 02:30 daily
	scheduleSweep      = "0 3 * * *"  // 03:00 daily
	scheduleCachePurge = "0 * * * *"  // hourly
	scheduleRollover   = "15 0 * * *" // 00:15 daily
)

// UserLister enumerates users with quota counters, for rollover.
type UserLister interface {
	UserIDs(ctx context.Context) ([]string, error)
}

// StoreUsers lists users from the durable store's ledger table.
type StoreUsers struct {
	Local *store.LocalStore
}

func (s StoreUsers) UserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Local.UserIDs()
}

// Runner owns the cron scheduler and the job implementations.
type Runner struct {
	ledger   *memory.Ledger
	enforcer *quota.Enforcer
	local    *store.LocalStore
	users    UserLister
	audit    *logging.AuditLogger

	mu   sync.Mutex
	cron *rcron.Cron
}

// NewRunner creates a job runner. users may be nil; rollover then skips
// explicit cleanup and relies on counter TTLs.
func NewRunner(ledger *memory.Ledger, enforcer *quota.Enforcer, local *store.LocalStore, users UserLister, audit *logging.AuditLogger) *Runner {
	return &Runner{
		ledger:   ledger,
		enforcer: enforcer,
		local:    local,
		users:    users,
		audit:    audit,
	}
}

// Start registers the schedules and starts the scheduler.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := rcron.New()
	register := func(spec, name string, job func(ctx context.Context) error) error {
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := job(ctx); err != nil {
				logging.JobsError("Job %s failed: %v", name, err)
			}
		})
		return err
	}

	if err := register(scheduleIngest, "memory-ingest", r.RunIngest); err != nil {
		return err
	}
	if err := register(scheduleSweep, "memory-sweep", r.RunSweep); err != nil {
		return err
	}
	if err := register(scheduleCachePurge, "cache-purge", r.RunCachePurge); err != nil {
		return err
	}
	if err := register(scheduleRollover, "quota-rollover", r.RunRollover); err != nil {
		return err
	}

	c.Start()
	r.cron = c
	logging.Jobs("Scheduler started: ingest %q, sweep %q, purge %q, rollover %q",
		scheduleIngest, scheduleSweep, scheduleCachePurge, scheduleRollover)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	logging.Jobs("Scheduler stopped")
}

// RunIngest extracts memories from turns that have settled for the
// configured ingest delay.
func (r *Runner) RunIngest(ctx context.Context) error {
	cutoff := r.ledger.IngestCutoff(time.Now())
	stats, err := r.ledger.IngestBatch(ctx, cutoff)
	if err != nil {
		return err
	}
	if stats.FactsExtracted > 0 {
		r.audit.Record(logging.AuditEvent{
			EventType: logging.AuditMemoryIngest,
			Success:   true,
			Fields: map[string]interface{}{
				"turns":    stats.TurnsProcessed,
				"facts":    stats.FactsExtracted,
				"inserted": stats.Inserted,
				"merged":   stats.Merged,
			},
		})
	}
	return nil
}

// RunSweep archives stale low-importance memories.
func (r *Runner) RunSweep(ctx context.Context) error {
	archived, err := r.ledger.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	if archived > 0 {
		r.audit.Record(logging.AuditEvent{
			EventType: logging.AuditMemoryArchive,
			Success:   true,
			Fields:    map[string]interface{}{"archived": archived},
		})
	}
	return nil
}

// RunCachePurge drops expired semantic cache rows.
func (r *Runner) RunCachePurge(ctx context.Context) error {
	purged, err := r.local.PurgeExpiredCache()
	if err != nil {
		return err
	}
	if purged > 0 {
		logging.Jobs("Purged %d expired semantic cache entries", purged)
	}
	return nil
}

// RunRollover drops elapsed-period quota counters. Counters are bucketed
// by period start, so this is housekeeping: re-runs are no-ops and a
// missed run only delays key expiry.
func (r *Runner) RunRollover(ctx context.Context) error {
	if r.users == nil {
		return nil
	}
	ids, err := r.users.UserIDs(ctx)
	if err != nil {
		return err
	}
	return r.enforcer.Rollover(ctx, ids)
}
