package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertRule is a user-activated alert preset with optional threshold
// overrides. Lifecycle is owned by the management API; the evaluator and
// scheduler consume rules read-only.
type AlertRule struct {
	ID                 uuid.UUID `db:"id"                  json:"id"`
	OrgID              uuid.UUID `db:"org_id"              json:"org_id"`
	ProjectID          uuid.UUID `db:"project_id"          json:"project_id"`
	PresetKey          string    `db:"preset_key"          json:"preset_key"`
	Name               string    `db:"name"                json:"name"`
	Category           string    `db:"category"            json:"category"`
	Description        string    `db:"description"         json:"description"`
	ThresholdValue     float64   `db:"threshold_value"     json:"threshold_value"`
	DurationSeconds    int       `db:"duration_seconds"    json:"duration_seconds"`
	ComparisonOperator string    `db:"comparison_operator" json:"comparison_operator"`
	IsActive           bool      `db:"is_active"           json:"is_active"`
	IsCustom           bool      `db:"is_custom"           json:"is_custom"`
	CreatedAt          time.Time `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"          json:"updated_at"`
}
