package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert event statuses.
//
// triggered → active happens when the condition is re-observed while the
// rule is in cooldown. resolved and acknowledged are terminal.
const (
	EventTriggered    = "triggered"
	EventActive       = "active"
	EventResolved     = "resolved"
	EventAcknowledged = "acknowledged"
)

// AlertEvent is one firing episode of a rule. RuleSnapshot captures the rule
// configuration at trigger time so history survives later rule edits or
// deletes.
type AlertEvent struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	RuleID           uuid.UUID  `db:"rule_id"           json:"rule_id"`
	OrgID            uuid.UUID  `db:"org_id"            json:"org_id"`
	ProjectID        uuid.UUID  `db:"project_id"        json:"project_id"`
	TriggeredAt      time.Time  `db:"triggered_at"      json:"triggered_at"`
	ResolvedAt       *time.Time `db:"resolved_at"       json:"resolved_at,omitempty"`
	MetricValue      float64    `db:"metric_value"      json:"metric_value"`
	ThresholdValue   float64    `db:"threshold_value"   json:"threshold_value"`
	Status           string     `db:"status"            json:"status"`
	CooldownUntil    *time.Time `db:"cooldown_until"    json:"cooldown_until,omitempty"`
	NotificationSent bool       `db:"notification_sent" json:"notification_sent"`
	RuleSnapshot     []byte     `db:"rule_snapshot"     json:"rule_snapshot,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}
