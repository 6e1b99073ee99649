package counters_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracely-io/tracely/internal/counters"
)

// --- Fake cache ---

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Ping(_ context.Context) error { return f.err }

func (f *fakeCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	f.ttls[key] = expiry
	return n, nil
}

func (f *fakeCache) MGetInts(_ context.Context, keys []string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]int64, len(keys))
	for i, k := range keys {
		out[i], _ = strconv.ParseInt(f.values[k], 10, 64)
	}
	return out, nil
}

func (f *fakeCache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) SetNXWithTTL(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.values[key]
	return ok, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeCache) TTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.ttls[key], nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- Counter windows ---

func TestGetCount_SumsWindowBuckets(t *testing.T) {
	fc := newFakeCache()
	base := time.Date(2026, 3, 1, 12, 10, 30, 0, time.UTC)
	projectID := uuid.New()
	ctx := context.Background()

	// Write into three consecutive minutes.
	for i, n := range []int{3, 5, 7} {
		clock := fixedClock(base.Add(time.Duration(i) * time.Minute))
		store := counters.NewStoreAt(fc, clock)
		for j := 0; j < n; j++ {
			store.IncrementRequest(ctx, projectID)
		}
	}

	store := counters.NewStoreAt(fc, fixedClock(base.Add(2*time.Minute)))
	assert.Equal(t, int64(15), store.GetCount(ctx, projectID, counters.MetricRequests, 3))
	assert.Equal(t, int64(12), store.GetCount(ctx, projectID, counters.MetricRequests, 2))
	assert.Equal(t, int64(7), store.GetCount(ctx, projectID, counters.MetricRequests, 1))
}

func TestGetCount_MissingBucketsAreZero(t *testing.T) {
	fc := newFakeCache()
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))

	count := store.GetCount(context.Background(), uuid.New(), counters.MetricErrors, 5)
	assert.Equal(t, int64(0), count)
}

func TestGetErrorRate(t *testing.T) {
	fc := newFakeCache()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := counters.NewStoreAt(fc, fixedClock(now))
	projectID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		store.IncrementRequest(ctx, projectID)
	}
	for i := 0; i < 16; i++ {
		store.IncrementError(ctx, projectID)
	}

	rate := store.GetErrorRate(ctx, projectID, 5)
	assert.InDelta(t, 5.333, rate, 0.01)
}

func TestGetErrorRate_NoRequests(t *testing.T) {
	fc := newFakeCache()
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))

	rate := store.GetErrorRate(context.Background(), uuid.New(), 5)
	assert.Equal(t, 0.0, rate)
}

// --- Graceful degradation ---

func TestDegradedCache_IncrementsAreNoOps(t *testing.T) {
	fc := newFakeCache()
	fc.err = errors.New("connection refused")
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))
	projectID := uuid.New()
	ctx := context.Background()

	assert.Equal(t, int64(0), store.IncrementRequest(ctx, projectID))
	assert.Equal(t, int64(0), store.GetCount(ctx, projectID, counters.MetricRequests, 5))
	assert.Equal(t, 0.0, store.GetErrorRate(ctx, projectID, 5))
	assert.False(t, store.IsInCooldown(ctx, uuid.New()))
	assert.Equal(t, time.Duration(0), store.RemainingCooldown(ctx, uuid.New()))
}

// --- Cooldowns ---

func TestCooldownLifecycle(t *testing.T) {
	fc := newFakeCache()
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))
	ruleID := uuid.New()
	ctx := context.Background()

	assert.False(t, store.IsInCooldown(ctx, ruleID))

	store.SetCooldown(ctx, ruleID, 300*time.Second)
	assert.True(t, store.IsInCooldown(ctx, ruleID))
	assert.Equal(t, 300*time.Second, store.RemainingCooldown(ctx, ruleID))

	store.ClearCooldown(ctx, ruleID)
	assert.False(t, store.IsInCooldown(ctx, ruleID))
}

func TestSetCooldown_DefaultTTL(t *testing.T) {
	fc := newFakeCache()
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))
	ruleID := uuid.New()

	store.SetCooldown(context.Background(), ruleID, 0)
	assert.Equal(t, counters.DefaultCooldownTTL, store.RemainingCooldown(context.Background(), ruleID))
}

// --- Scheduler lock ---

func TestTryLock(t *testing.T) {
	fc := newFakeCache()
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))
	ctx := context.Background()

	require.True(t, store.TryLock(ctx, "threshold", time.Minute))
	assert.False(t, store.TryLock(ctx, "threshold", time.Minute))
	assert.True(t, store.TryLock(ctx, "critical", time.Minute))
}

func TestTryLock_DegradedCacheRunsCycle(t *testing.T) {
	fc := newFakeCache()
	fc.err = errors.New("connection refused")
	store := counters.NewStoreAt(fc, fixedClock(time.Now()))

	assert.True(t, store.TryLock(context.Background(), "threshold", time.Minute))
}
