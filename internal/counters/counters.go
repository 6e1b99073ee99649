// Package counters maintains Redis-backed sliding-window counters for
// near-real-time alert evaluation, plus per-rule cooldown tokens.
//
// Key patterns:
//   - alert:counter:{project}:{requests|errors}:{minuteEpoch} (TTL 600s)
//   - alert:cooldown:{ruleID} (TTL = cooldown duration)
//
// Every operation degrades gracefully: on Redis unavailability increments
// are no-ops and reads return zero/false. A cache outage must never surface
// as a request failure.
package counters

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tracely-io/tracely/internal/cache"
)

// Metric names used in counter keys.
const (
	MetricRequests = "requests"
	MetricErrors   = "errors"
)

// CounterTTL is how long a per-minute bucket survives after its last write.
const CounterTTL = 10 * time.Minute

// DefaultCooldownTTL is the default suppression window after a rule fires.
const DefaultCooldownTTL = 5 * time.Minute

// Store provides sliding-window counters and cooldown tokens.
type Store struct {
	cache cache.Cache
	now   func() time.Time
}

// NewStore creates a counter store on top of the given cache.
func NewStore(c cache.Cache) *Store {
	return &Store{cache: c, now: time.Now}
}

// NewStoreAt creates a counter store with an injected clock. Used by tests
// that need deterministic minute buckets.
func NewStoreAt(c cache.Cache, now func() time.Time) *Store {
	return &Store{cache: c, now: now}
}

// currentMinute returns the current minute-epoch (unix seconds / 60).
func (s *Store) currentMinute() int64 {
	return s.now().Unix() / 60
}

// IncrementRequest increments the current-minute request bucket for a
// project. Returns the new bucket value, 0 on cache failure.
func (s *Store) IncrementRequest(ctx context.Context, projectID uuid.UUID) int64 {
	return s.increment(ctx, projectID, MetricRequests)
}

// IncrementError increments the current-minute error bucket for a project.
func (s *Store) IncrementError(ctx context.Context, projectID uuid.UUID) int64 {
	return s.increment(ctx, projectID, MetricErrors)
}

func (s *Store) increment(ctx context.Context, projectID uuid.UUID, metric string) int64 {
	key := cache.CounterKey(projectID, metric, s.currentMinute())
	n, err := s.cache.IncrWithExpiry(ctx, key, CounterTTL)
	if err != nil {
		slog.Warn("failed to increment alert counter",
			"project_id", projectID, "metric", metric, "error", err)
		return 0
	}
	return n
}

// GetCount sums the last windowMinutes per-minute buckets (current minute
// plus windowMinutes-1 prior). Missing buckets count as zero.
func (s *Store) GetCount(ctx context.Context, projectID uuid.UUID, metric string, windowMinutes int) int64 {
	if windowMinutes < 1 {
		windowMinutes = 1
	}
	current := s.currentMinute()
	keys := make([]string, windowMinutes)
	for i := 0; i < windowMinutes; i++ {
		keys[i] = cache.CounterKey(projectID, metric, current-int64(i))
	}

	vals, err := s.cache.MGetInts(ctx, keys)
	if err != nil {
		slog.Warn("failed to read alert counters",
			"project_id", projectID, "metric", metric, "error", err)
		return 0
	}

	var total int64
	for _, v := range vals {
		total += v
	}
	return total
}

// GetErrorRate returns 100 * errors / requests over the window, or 0.0 when
// the window has no requests.
func (s *Store) GetErrorRate(ctx context.Context, projectID uuid.UUID, windowMinutes int) float64 {
	errorCount := s.GetCount(ctx, projectID, MetricErrors, windowMinutes)
	requestCount := s.GetCount(ctx, projectID, MetricRequests, windowMinutes)

	if requestCount == 0 {
		return 0.0
	}
	return float64(errorCount) / float64(requestCount) * 100
}

// IsInCooldown reports whether a rule's cooldown token is present.
func (s *Store) IsInCooldown(ctx context.Context, ruleID uuid.UUID) bool {
	ok, err := s.cache.Exists(ctx, cache.CooldownKey(ruleID))
	if err != nil {
		slog.Warn("failed to check cooldown", "rule_id", ruleID, "error", err)
		return false
	}
	return ok
}

// SetCooldown places a rule in cooldown for ttl.
func (s *Store) SetCooldown(ctx context.Context, ruleID uuid.UUID, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCooldownTTL
	}
	if err := s.cache.SetWithTTL(ctx, cache.CooldownKey(ruleID), "1", ttl); err != nil {
		slog.Warn("failed to set cooldown", "rule_id", ruleID, "error", err)
	}
}

// ClearCooldown removes a rule's cooldown token so it can fire again
// immediately.
func (s *Store) ClearCooldown(ctx context.Context, ruleID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.CooldownKey(ruleID)); err != nil {
		slog.Warn("failed to clear cooldown", "rule_id", ruleID, "error", err)
	}
}

// RemainingCooldown returns the time left on a rule's cooldown, 0 if the
// rule is not in cooldown.
func (s *Store) RemainingCooldown(ctx context.Context, ruleID uuid.UUID) time.Duration {
	d, err := s.cache.TTL(ctx, cache.CooldownKey(ruleID))
	if err != nil {
		slog.Warn("failed to get cooldown TTL", "rule_id", ruleID, "error", err)
		return 0
	}
	return d
}

// TryLock acquires a best-effort scheduler cycle lock. Returns true when
// this process won the cycle. Lock loss on Redis failure errs on the side of
// running the cycle.
func (s *Store) TryLock(ctx context.Context, family string, ttl time.Duration) bool {
	ok, err := s.cache.SetNXWithTTL(ctx, cache.SchedulerLockKey(family), "1", ttl)
	if err != nil {
		slog.Warn("failed to acquire scheduler lock", "family", family, "error", err)
		return true
	}
	return ok
}
