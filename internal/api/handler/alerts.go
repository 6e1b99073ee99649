package handler

import (
	"net/http"

	"github.com/tracely-io/tracely/internal/alerting"
	mw "github.com/tracely-io/tracely/internal/api/middleware"
	"github.com/tracely-io/tracely/internal/api/response"
	"github.com/tracely-io/tracely/internal/store"
)

// AlertTemplate is one preset merged with the caller's activation state.
type AlertTemplate struct {
	alerting.Preset
	IsActive        bool     `json:"is_active"`
	RuleID          string   `json:"rule_id,omitempty"`
	ThresholdValue  *float64 `json:"threshold_value,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
}

// NewAlertTemplatesHandler returns the handler for GET /v1/alerts/templates:
// all presets, annotated with the project's activation status and any
// threshold overrides.
func NewAlertTemplatesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing project", nil)
			return
		}

		rules, err := st.ListProjectRules(r.Context(), orgID, projectID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load alert rules", nil)
			return
		}

		byPreset := make(map[string]int, len(rules))
		for i, rule := range rules {
			byPreset[rule.PresetKey] = i
		}

		templates := make([]AlertTemplate, 0, len(alerting.Presets()))
		for _, preset := range alerting.Presets() {
			tpl := AlertTemplate{Preset: preset}
			if i, ok := byPreset[preset.Key]; ok {
				rule := rules[i]
				tpl.IsActive = rule.IsActive
				tpl.RuleID = rule.ID.String()
				tpl.ThresholdValue = &rule.ThresholdValue
				tpl.DurationSeconds = &rule.DurationSeconds
			}
			templates = append(templates, tpl)
		}

		response.JSON(w, templates)
	}
}
