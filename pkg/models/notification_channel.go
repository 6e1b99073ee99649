package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel types. Each project can have one channel of each type; email has
// no stored config (recipients come from the org admin list).
const (
	ChannelEmail   = "email"
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
)

// ChannelConfig holds per-channel settings. Slack and Discord require a
// webhook URL.
type ChannelConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

// NotificationChannel is a configured delivery target for alert
// notifications on a project.
type NotificationChannel struct {
	ID          uuid.UUID     `db:"id"           json:"id"`
	OrgID       uuid.UUID     `db:"org_id"       json:"org_id"`
	ProjectID   uuid.UUID     `db:"project_id"   json:"project_id"`
	ChannelType string        `db:"channel_type" json:"channel_type"`
	Config      ChannelConfig `db:"config"       json:"config"`
	IsEnabled   bool          `db:"is_enabled"   json:"is_enabled"`
	CreatedAt   time.Time     `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"   json:"updated_at"`
}
