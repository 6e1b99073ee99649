package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/pkg/models"
)

// Notifier delivers alert notifications for freshly fired events.
type Notifier interface {
	NotifyAlert(ctx context.Context, event *models.AlertEvent, rule *models.AlertRule)
}

// Scheduler runs periodic evaluation cycles: threshold presets on the
// standard tick and critical presets on a fast tick. A best-effort Redis
// lock per family keeps multiple instances from duplicating a cycle.
type Scheduler struct {
	store     store.Store
	counters  *counters.Store
	evaluator *Evaluator
	recorder  *Recorder
	notifier  Notifier

	thresholdInterval time.Duration
	criticalInterval  time.Duration

	cron *cron.Cron
	wg   sync.WaitGroup
}

func NewScheduler(
	st store.Store,
	counterStore *counters.Store,
	evaluator *Evaluator,
	recorder *Recorder,
	notifier Notifier,
	thresholdInterval, criticalInterval time.Duration,
) *Scheduler {
	return &Scheduler{
		store:             st,
		counters:          counterStore,
		evaluator:         evaluator,
		recorder:          recorder,
		notifier:          notifier,
		thresholdInterval: thresholdInterval,
		criticalInterval:  criticalInterval,
	}
}

// Start registers both cron entries and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.thresholdInterval), func() {
		s.runCycle(ctx, "threshold", ThresholdPresetKeys, s.thresholdInterval)
	})
	if err != nil {
		return fmt.Errorf("add threshold cycle: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.criticalInterval), func() {
		s.runCycle(ctx, "critical", CriticalPresetKeys, s.criticalInterval)
	})
	if err != nil {
		return fmt.Errorf("add critical cycle: %w", err)
	}

	s.cron.Start()
	slog.Info("alert scheduler started",
		"threshold_interval", s.thresholdInterval,
		"critical_interval", s.criticalInterval)
	return nil
}

// Stop halts the tickers and waits for running cycles and in-flight
// notification dispatches.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	slog.Info("alert scheduler stopped")
}

// lockMargin keeps the cycle lock's TTL below the tick interval. The SET
// lands after the tick, so a TTL equal to the interval would outlive the
// next activation and make an instance skip its own following cycle.
const lockMargin = 5 * time.Second

func lockTTL(interval time.Duration) time.Duration {
	if interval > 2*lockMargin {
		return interval - lockMargin
	}
	return interval / 2
}

// runCycle evaluates every active rule in a preset family. Per-rule
// failures are logged and never abort the cycle.
func (s *Scheduler) runCycle(ctx context.Context, family string, presetKeys []string, interval time.Duration) {
	if !s.counters.TryLock(ctx, family, lockTTL(interval)) {
		slog.Debug("evaluation cycle held by another instance", "family", family)
		return
	}

	rules, err := s.store.ListActiveRules(ctx, presetKeys)
	if err != nil {
		slog.Error("failed to load active rules", "family", family, "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}
	slog.Debug("evaluating alert rules", "family", family, "count", len(rules))

	for _, rule := range rules {
		if err := s.evaluateRule(ctx, rule); err != nil {
			slog.Error("rule evaluation failed",
				"rule_id", rule.ID, "preset_key", rule.PresetKey, "error", err)
		}
	}
}

func (s *Scheduler) evaluateRule(ctx context.Context, rule *models.AlertRule) error {
	result := s.evaluator.Evaluate(ctx, rule)

	if !result.Triggered {
		_, err := s.recorder.Resolve(ctx, rule)
		return err
	}

	event, fired, err := s.recorder.FireAlert(ctx, rule, result)
	if err != nil {
		return err
	}
	if fired && s.notifier != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.notifier.NotifyAlert(ctx, event, rule)
		}()
	}
	return nil
}
