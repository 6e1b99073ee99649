package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/pkg/models"
)

// Recorder owns the per-rule firing state machine: new trigger creates a
// triggered event and sets cooldown; a trigger during cooldown updates the
// open event in place; a clear condition resolves the open event and
// releases the cooldown.
type Recorder struct {
	store       store.Store
	counters    *counters.Store
	cooldownTTL time.Duration
	now         func() time.Time
}

func NewRecorder(st store.Store, counterStore *counters.Store, cooldownTTL time.Duration) *Recorder {
	return &Recorder{
		store:       st,
		counters:    counterStore,
		cooldownTTL: cooldownTTL,
		now:         time.Now,
	}
}

// FireAlert records a triggered evaluation. It returns the event and
// whether it is a fresh firing (a new row, eligible for notification).
// While the rule is in cooldown the most recent open event is flipped to
// active with the latest metric value instead.
func (r *Recorder) FireAlert(ctx context.Context, rule *models.AlertRule, result Result) (*models.AlertEvent, bool, error) {
	if r.counters.IsInCooldown(ctx, rule.ID) {
		event, err := r.store.GetOpenEvent(ctx, rule.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Cooldown token outlived its event; nothing to update.
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("get open event: %w", err)
		}
		if err := r.store.MarkEventActive(ctx, event.ID, result.MetricValue); err != nil {
			return nil, false, fmt.Errorf("mark event active: %w", err)
		}
		event.Status = models.EventActive
		event.MetricValue = result.MetricValue
		return event, false, nil
	}

	snapshot, err := json.Marshal(rule)
	if err != nil {
		return nil, false, fmt.Errorf("marshal rule snapshot: %w", err)
	}

	now := r.now().UTC()
	cooldownUntil := now.Add(r.cooldownTTL)
	event := &models.AlertEvent{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		OrgID:          rule.OrgID,
		ProjectID:      rule.ProjectID,
		TriggeredAt:    now,
		MetricValue:    result.MetricValue,
		ThresholdValue: result.ThresholdValue,
		Status:         models.EventTriggered,
		CooldownUntil:  &cooldownUntil,
		RuleSnapshot:   snapshot,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateAlertEvent(ctx, event); err != nil {
		return nil, false, fmt.Errorf("create alert event: %w", err)
	}

	r.counters.SetCooldown(ctx, rule.ID, r.cooldownTTL)

	slog.Info("alert fired",
		"preset_key", rule.PresetKey,
		"rule_id", rule.ID,
		"metric_value", result.MetricValue,
		"threshold_value", result.ThresholdValue)
	return event, true, nil
}

// Resolve closes the most recent open event for a rule and clears its
// cooldown so the rule may fire again immediately. No open event is not
// an error.
func (r *Recorder) Resolve(ctx context.Context, rule *models.AlertRule) (*models.AlertEvent, error) {
	event, err := r.store.GetOpenEvent(ctx, rule.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open event: %w", err)
	}

	resolvedAt := r.now().UTC()
	if err := r.store.ResolveEvent(ctx, event.ID, resolvedAt); err != nil {
		return nil, fmt.Errorf("resolve event: %w", err)
	}
	r.counters.ClearCooldown(ctx, rule.ID)

	event.Status = models.EventResolved
	event.ResolvedAt = &resolvedAt

	slog.Info("alert resolved", "preset_key", rule.PresetKey, "rule_id", rule.ID)
	return event, nil
}
