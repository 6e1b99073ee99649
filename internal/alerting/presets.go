// Package alerting implements hybrid alert evaluation: critical presets
// read the Redis sliding-window counters, threshold presets query the
// ClickHouse one-minute rollup.
package alerting

// Preset is an immutable alert template. User activations live in the
// alert_rules table with optional threshold overrides.
type Preset struct {
	Key              string  `json:"key"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Description      string  `json:"description"`
	DefaultThreshold float64 `json:"default_threshold"`
	DefaultDuration  int     `json:"default_duration"`
	Comparison       string  `json:"comparison"`
	Metric           string  `json:"metric"`
}

var presets = []Preset{
	{
		Key:              "high_error_rate",
		Name:             "High Error Rate",
		Category:         "availability",
		Description:      "Fires when error rate exceeds threshold",
		DefaultThreshold: 5.0,
		DefaultDuration:  300,
		Comparison:       "gt",
		Metric:           "error_rate",
	},
	{
		Key:              "service_down",
		Name:             "Service Down",
		Category:         "availability",
		Description:      "Fires when no requests received",
		DefaultThreshold: 0,
		DefaultDuration:  180,
		Comparison:       "eq",
		Metric:           "request_count",
	},
	{
		Key:              "slow_responses",
		Name:             "Slow Responses",
		Category:         "performance",
		Description:      "Fires when p95 latency exceeds threshold",
		DefaultThreshold: 2000,
		DefaultDuration:  300,
		Comparison:       "gt",
		Metric:           "p95_latency",
	},
	{
		Key:              "latency_spike",
		Name:             "Latency Spike",
		Category:         "performance",
		Description:      "Fires when p95 increases 200%+ vs previous hour",
		DefaultThreshold: 200,
		DefaultDuration:  60,
		Comparison:       "pct_increase",
		Metric:           "p95_latency",
	},
	{
		Key:              "traffic_drop",
		Name:             "Traffic Drop",
		Category:         "volume",
		Description:      "Fires when request volume drops 50%+ vs previous hour",
		DefaultThreshold: 50,
		DefaultDuration:  300,
		Comparison:       "pct_decrease",
		Metric:           "request_count",
	},
	{
		Key:              "traffic_surge",
		Name:             "Traffic Surge",
		Category:         "volume",
		Description:      "Fires when request volume increases 300%+",
		DefaultThreshold: 300,
		DefaultDuration:  300,
		Comparison:       "pct_increase",
		Metric:           "request_count",
	},
}

// CriticalPresetKeys are counter-backed presets evaluated on the fast
// scheduler tick.
var CriticalPresetKeys = []string{"high_error_rate", "service_down"}

// ThresholdPresetKeys are rollup-backed presets evaluated on the standard
// scheduler tick.
var ThresholdPresetKeys = []string{"slow_responses", "latency_spike", "traffic_drop", "traffic_surge"}

var presetSeverity = map[string]string{
	"high_error_rate": "critical",
	"service_down":    "critical",
	"slow_responses":  "warning",
	"latency_spike":   "warning",
	"traffic_drop":    "warning",
	"traffic_surge":   "info",
}

var presetMetricName = map[string]string{
	"high_error_rate": "Error Rate",
	"service_down":    "Request Count",
	"slow_responses":  "P95 Latency",
	"latency_spike":   "Latency Increase",
	"traffic_drop":    "Traffic Drop",
	"traffic_surge":   "Traffic Increase",
}

// Presets returns all alert templates in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByKey returns the preset for a key, or false when unknown.
func PresetByKey(key string) (Preset, bool) {
	for _, p := range presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// Severity maps a preset key to its notification severity. Unknown keys
// default to info.
func Severity(presetKey string) string {
	if s, ok := presetSeverity[presetKey]; ok {
		return s
	}
	return "info"
}

// MetricName returns the display name of a preset's metric.
func MetricName(presetKey string) string {
	if n, ok := presetMetricName[presetKey]; ok {
		return n
	}
	return "Metric"
}

// IsCritical reports whether a preset belongs to the counter-backed
// critical family.
func IsCritical(presetKey string) bool {
	for _, k := range CriticalPresetKeys {
		if k == presetKey {
			return true
		}
	}
	return false
}
