package alerting

import (
	"context"
	"log/slog"

	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/spanstore"
	"github.com/tracely-io/tracely/pkg/models"
)

// Result is the outcome of evaluating one rule.
type Result struct {
	Triggered      bool
	MetricValue    float64
	ThresholdValue float64
}

// Evaluator checks alert rule conditions against live counters and the
// columnar rollup. It is stateless; firing and cooldown belong to the
// Recorder.
type Evaluator struct {
	counters *counters.Store
	spans    spanstore.Store
}

func NewEvaluator(counterStore *counters.Store, spans spanstore.Store) *Evaluator {
	return &Evaluator{counters: counterStore, spans: spans}
}

// Evaluate dispatches on the rule's preset key. Unknown presets evaluate
// to not-triggered so stale configuration cannot wedge a scheduler cycle.
// Metric query failures degrade to zero readings rather than erroring.
func (e *Evaluator) Evaluate(ctx context.Context, rule *models.AlertRule) Result {
	switch rule.PresetKey {
	case "high_error_rate":
		return e.evaluateErrorRate(ctx, rule)
	case "service_down":
		return e.evaluateServiceDown(ctx, rule)
	case "slow_responses":
		return e.evaluateSlowResponses(ctx, rule)
	case "latency_spike":
		return e.evaluateLatencySpike(ctx, rule)
	case "traffic_drop":
		return e.evaluateVolumeChange(ctx, rule, true)
	case "traffic_surge":
		return e.evaluateVolumeChange(ctx, rule, false)
	default:
		slog.Warn("unknown alert preset", "preset_key", rule.PresetKey, "rule_id", rule.ID)
		return Result{Triggered: false, ThresholdValue: rule.ThresholdValue}
	}
}

func windowMinutes(durationSeconds int) int {
	m := durationSeconds / 60
	if m < 1 {
		return 1
	}
	return m
}

// Strict >: an error rate exactly at the threshold does not trigger.
func (e *Evaluator) evaluateErrorRate(ctx context.Context, rule *models.AlertRule) Result {
	rate := e.counters.GetErrorRate(ctx, rule.ProjectID, windowMinutes(rule.DurationSeconds))
	return Result{
		Triggered:      rate > rule.ThresholdValue,
		MetricValue:    rate,
		ThresholdValue: rule.ThresholdValue,
	}
}

// The service is considered down when the windowed request count equals
// the threshold, normally zero.
func (e *Evaluator) evaluateServiceDown(ctx context.Context, rule *models.AlertRule) Result {
	count := e.counters.GetCount(ctx, rule.ProjectID, counters.MetricRequests, windowMinutes(rule.DurationSeconds))
	return Result{
		Triggered:      float64(count) == rule.ThresholdValue,
		MetricValue:    float64(count),
		ThresholdValue: rule.ThresholdValue,
	}
}

func (e *Evaluator) evaluateSlowResponses(ctx context.Context, rule *models.AlertRule) Result {
	p95, err := e.spans.WindowP95(ctx, rule.OrgID, rule.ProjectID, windowMinutes(rule.DurationSeconds))
	if err != nil {
		slog.Warn("p95 query failed", "rule_id", rule.ID, "error", err)
		p95 = 0
	}
	return Result{
		Triggered:      p95 > rule.ThresholdValue,
		MetricValue:    p95,
		ThresholdValue: rule.ThresholdValue,
	}
}

func (e *Evaluator) evaluateLatencySpike(ctx context.Context, rule *models.AlertRule) Result {
	current, err := e.spans.WindowP95(ctx, rule.OrgID, rule.ProjectID, windowMinutes(rule.DurationSeconds))
	if err != nil {
		slog.Warn("latency spike query failed", "rule_id", rule.ID, "error", err)
		current = 0
	}
	previous, err := e.spans.BaselineP95(ctx, rule.OrgID, rule.ProjectID)
	if err != nil {
		slog.Warn("latency baseline query failed", "rule_id", rule.ID, "error", err)
		previous = 0
	}

	// Zero baseline never triggers.
	pctIncrease := 0.0
	if previous > 0 {
		pctIncrease = (current - previous) / previous * 100
	}
	return Result{
		Triggered:      pctIncrease >= rule.ThresholdValue,
		MetricValue:    pctIncrease,
		ThresholdValue: rule.ThresholdValue,
	}
}

func (e *Evaluator) evaluateVolumeChange(ctx context.Context, rule *models.AlertRule, isDrop bool) Result {
	current, err := e.spans.WindowCount(ctx, rule.OrgID, rule.ProjectID, windowMinutes(rule.DurationSeconds))
	if err != nil {
		slog.Warn("volume query failed", "rule_id", rule.ID, "error", err)
		current = 0
	}
	previous, err := e.spans.BaselineCount(ctx, rule.OrgID, rule.ProjectID)
	if err != nil {
		slog.Warn("volume baseline query failed", "rule_id", rule.ID, "error", err)
		previous = 0
	}

	pctChange := 0.0
	if previous > 0 {
		pctChange = (float64(current) - float64(previous)) / float64(previous) * 100
	}

	if isDrop {
		metric := 0.0
		if pctChange < 0 {
			metric = -pctChange
		}
		return Result{
			Triggered:      pctChange < 0 && -pctChange >= rule.ThresholdValue,
			MetricValue:    metric,
			ThresholdValue: rule.ThresholdValue,
		}
	}

	metric := 0.0
	if pctChange > 0 {
		metric = pctChange
	}
	return Result{
		Triggered:      pctChange > 0 && pctChange >= rule.ThresholdValue,
		MetricValue:    metric,
		ThresholdValue: rule.ThresholdValue,
	}
}
