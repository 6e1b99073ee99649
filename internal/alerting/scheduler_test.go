package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/pkg/models"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []*models.AlertEvent
}

func (n *captureNotifier) NotifyAlert(ctx context.Context, event *models.AlertEvent, rule *models.AlertRule) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestScheduler(c *fakeCache, st *memStore, spans *fakeSpanMetrics, notifier Notifier) *Scheduler {
	cs := counters.NewStoreAt(c, func() time.Time { return testClock })
	if spans == nil {
		spans = &fakeSpanMetrics{}
	}
	rec := NewRecorder(st, cs, 5*time.Minute)
	rec.now = func() time.Time { return testClock }
	return NewScheduler(st, cs, NewEvaluator(cs, spans), rec, notifier, time.Minute, 10*time.Second)
}

func TestCycleFiresAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	c := newFakeCache(testClock)
	notifier := &captureNotifier{}

	r := rule("slow_responses", 2000, 300)
	st := &memStore{rules: []*models.AlertRule{r}}
	s := newTestScheduler(c, st, &fakeSpanMetrics{windowP95: 2500}, notifier)

	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	assert.Equal(t, 1, st.eventCount())
	assert.Equal(t, 1, notifier.count())

	// A second triggered cycle during cooldown updates the open event
	// without a second notification. The cycle lock from the first run has
	// to be released for the rerun.
	c.Delete(ctx, "alert:scheduler:lock:threshold")
	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	assert.Equal(t, 1, st.eventCount())
	assert.Equal(t, 1, notifier.count())
	open, err := st.GetOpenEvent(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventActive, open.Status)
}

func TestCycleResolvesClearedCondition(t *testing.T) {
	ctx := context.Background()
	c := newFakeCache(testClock)

	r := rule("slow_responses", 2000, 300)
	st := &memStore{rules: []*models.AlertRule{r}}
	spans := &fakeSpanMetrics{windowP95: 2500}
	s := newTestScheduler(c, st, spans, &captureNotifier{})

	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()
	require.Equal(t, 1, st.eventCount())

	spans.windowP95 = 1500
	c.Delete(ctx, "alert:scheduler:lock:threshold")
	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	_, err := st.GetOpenEvent(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCycleLockSkipsSecondInstance(t *testing.T) {
	ctx := context.Background()
	c := newFakeCache(testClock)
	notifier := &captureNotifier{}

	r := rule("slow_responses", 2000, 300)
	st := &memStore{rules: []*models.AlertRule{r}}
	s := newTestScheduler(c, st, &fakeSpanMetrics{windowP95: 2500}, notifier)

	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	// Lock still held: the second run is a no-op.
	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	assert.Equal(t, 1, st.eventCount())
	assert.Equal(t, 1, notifier.count())
}

func TestCycleLockExpiresBeforeNextTick(t *testing.T) {
	ctx := context.Background()
	c := newFakeCache(testClock)
	notifier := &captureNotifier{}

	r := rule("slow_responses", 2000, 300)
	st := &memStore{rules: []*models.AlertRule{r}}
	s := newTestScheduler(c, st, &fakeSpanMetrics{windowP95: 2500}, notifier)

	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()
	require.Equal(t, 1, st.eventCount())

	// The SET lands after the tick, so the next activation arrives just
	// before a full interval has passed since the lock was written. The
	// lock TTL stays under the interval, so the same instance wins the
	// cycle again instead of skipping every other one.
	c.advance(time.Minute - time.Millisecond)
	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	open, err := st.GetOpenEvent(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventActive, open.Status)
}

func TestCycleIgnoresInactiveAndForeignPresets(t *testing.T) {
	ctx := context.Background()
	c := newFakeCache(testClock)

	inactive := rule("slow_responses", 2000, 300)
	inactive.IsActive = false
	critical := rule("high_error_rate", 5.0, 300)
	st := &memStore{rules: []*models.AlertRule{inactive, critical}}
	s := newTestScheduler(c, st, &fakeSpanMetrics{windowP95: 9000}, &captureNotifier{})

	s.runCycle(ctx, "threshold", ThresholdPresetKeys, time.Minute)
	s.wg.Wait()

	assert.Zero(t, st.eventCount())
}
