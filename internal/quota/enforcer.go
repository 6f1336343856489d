// Package quota gates billable operations behind per-user usage counters.
// Counters live in the fast store under period-bucketed keys, so rollover
// is a property of the key space rather than a mutation: a new period reads
// as zero, and old-period keys expire on their own.
package quota

import (
	"context"
	"fmt"
	"time"

	"tutorcore/internal/config"
	"tutorcore/internal/faststore"
	"tutorcore/internal/logging"
)

// Resource kinds the enforcer meters.
const (
	ResourceChatMessages    = "chatMessages"
	ResourceRAGQueries      = "ragQueries"
	ResourceLargeModelCalls = "largeModelCalls"
)

// Denial explains a rejected operation in user-facing terms.
type Denial struct {
	ExceededResource string `json:"exceededResource"`
	CurrentUsage     int64  `json:"currentUsage"`
	Limit            int64  `json:"limit"`
	SuggestedAction  string `json:"suggestedAction"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d", d.ExceededResource, d.CurrentUsage, d.Limit)
}

// Usage is a point-in-time counter snapshot for one resource.
type Usage struct {
	Resource    string    `json:"resource"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// =============================================================================
// ENFORCER
// =============================================================================

// Enforcer meters per-user resource usage against configured limits.
// A limit of zero (or an unlisted resource) is uncapped.
type Enforcer struct {
	cfg    config.QuotaConfig
	fast   faststore.Store
	period time.Duration
	now    func() time.Time
}

// NewEnforcer creates a quota enforcer over the shared fast store.
func NewEnforcer(cfg config.QuotaConfig, fast faststore.Store) *Enforcer {
	period, err := time.ParseDuration(cfg.Period)
	if err != nil || period <= 0 {
		period = 720 * time.Hour
	}
	return &Enforcer{cfg: cfg, fast: fast, period: period, now: time.Now}
}

// periodStart buckets a timestamp to the start of its quota period.
func (e *Enforcer) periodStart(t time.Time) time.Time {
	return t.UTC().Truncate(e.period)
}

// counterKey embeds the period start so a fresh period reads as zero
// without any reset write.
func (e *Enforcer) counterKey(userID, resource string, start time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%d", userID, resource, start.Unix())
}

// counterTTL keeps expired-period keys around long enough for usage
// reporting, then lets the store drop them.
func (e *Enforcer) counterTTL() time.Duration {
	return 2 * e.period
}

// Check verifies the user has headroom for one unit of the resource.
// Returns a Denial when the counter has reached its limit; the caller
// must not perform the billable operation in that case. Check never
// increments: consumption happens only after the operation succeeds.
func (e *Enforcer) Check(ctx context.Context, userID, resource string) (*Denial, error) {
	limit := e.cfg.Limits[resource]
	if limit <= 0 {
		return nil, nil
	}

	key := e.counterKey(userID, resource, e.periodStart(e.now()))
	used, err := e.fast.GetCounter(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counter: %w", err)
	}
	if used >= limit {
		logging.QuotaDebug("Denying %s for user %s: %d/%d", resource, userID, used, limit)
		return &Denial{
			ExceededResource: resource,
			CurrentUsage:     used,
			Limit:            limit,
			SuggestedAction:  e.cfg.UpgradeHint,
		}, nil
	}
	return nil, nil
}

// Consume records one unit of usage after a successful operation.
// The increment is atomic with a ceiling, so concurrent turns from the
// same user on multiple devices cannot push the counter past its limit.
// Hitting the ceiling here is not an error: the operation already ran
// and its cost is committed, so the counter simply saturates.
func (e *Enforcer) Consume(ctx context.Context, userID, resource string) error {
	return e.ConsumeN(ctx, userID, resource, 1)
}

// ConsumeN records n units of usage.
func (e *Enforcer) ConsumeN(ctx context.Context, userID, resource string, n int64) error {
	limit := e.cfg.Limits[resource]
	if limit <= 0 || n <= 0 {
		return nil
	}

	key := e.counterKey(userID, resource, e.periodStart(e.now()))
	used, applied, err := e.fast.IncrWithCeiling(ctx, key, n, limit, e.counterTTL())
	if err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	if !applied {
		logging.QuotaDebug("Counter %s saturated at %d/%d", key, used, limit)
	}
	return nil
}

// Reserve atomically checks and claims one unit in a single call, for
// callers that prefer claim-then-refund over check-then-consume.
func (e *Enforcer) Reserve(ctx context.Context, userID, resource string) (*Denial, error) {
	limit := e.cfg.Limits[resource]
	if limit <= 0 {
		return nil, nil
	}

	key := e.counterKey(userID, resource, e.periodStart(e.now()))
	used, applied, err := e.fast.IncrWithCeiling(ctx, key, 1, limit, e.counterTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}
	if !applied {
		return &Denial{
			ExceededResource: resource,
			CurrentUsage:     used,
			Limit:            limit,
			SuggestedAction:  e.cfg.UpgradeHint,
		}, nil
	}
	return nil, nil
}

// Refund returns one previously reserved unit.
func (e *Enforcer) Refund(ctx context.Context, userID, resource string) error {
	limit := e.cfg.Limits[resource]
	if limit <= 0 {
		return nil
	}
	key := e.counterKey(userID, resource, e.periodStart(e.now()))
	_, _, err := e.fast.IncrWithCeiling(ctx, key, -1, limit, e.counterTTL())
	if err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}
	return nil
}

// UsageReport returns the current period's usage for every capped resource.
func (e *Enforcer) UsageReport(ctx context.Context, userID string) ([]Usage, error) {
	start := e.periodStart(e.now())
	end := start.Add(e.period)

	var report []Usage
	for resource, limit := range e.cfg.Limits {
		if limit <= 0 {
			continue
		}
		used, err := e.fast.GetCounter(ctx, e.counterKey(userID, resource, start))
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s: %w", resource, err)
		}
		report = append(report, Usage{
			Resource:    resource,
			Used:        used,
			Limit:       limit,
			PeriodStart: start,
			PeriodEnd:   end,
		})
	}
	return report, nil
}

// Rollover drops counters from already-elapsed periods. Period-bucketed
// keys make this housekeeping rather than correctness: a new period reads
// zero whether or not this ran. Re-running is a no-op because the current
// period's keys are never touched.
func (e *Enforcer) Rollover(ctx context.Context, userIDs []string) error {
	current := e.periodStart(e.now())
	previous := current.Add(-e.period)

	for _, userID := range userIDs {
		for resource, limit := range e.cfg.Limits {
			if limit <= 0 {
				continue
			}
			key := e.counterKey(userID, resource, previous)
			if err := e.fast.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to roll over %s: %w", key, err)
			}
		}
	}
	logging.Quota("Rolled over quota counters for %d users (period starting %s)",
		len(userIDs), current.Format(time.RFC3339))
	return nil
}
