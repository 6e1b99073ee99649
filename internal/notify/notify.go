// Package notify delivers alert notifications over email (Resend), Slack
// and Discord webhooks. Channels dispatch concurrently and fail
// independently, with a single retry per channel.
package notify

import (
	"time"
)

// Severity display colors shared across channels.
const (
	colorCritical = "#FF0000"
	colorWarning  = "#FFA500"
	colorInfo     = "#0000FF"
	colorDefault  = "#333333"
)

// Discord wants decimal embed colors.
var discordColors = map[string]int{
	"critical": 0xFF0000,
	"warning":  0xFFA500,
	"info":     0x0000FF,
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return colorCritical
	case "warning":
		return colorWarning
	case "info":
		return colorInfo
	default:
		return colorDefault
	}
}

func discordColor(severity string) int {
	if c, ok := discordColors[severity]; ok {
		return c
	}
	return 0x333333
}

// alertData carries everything a channel needs to render one alert.
type alertData struct {
	AlertName      string
	ProjectName    string
	Severity       string
	MetricName     string
	MetricValue    float64
	ThresholdValue float64
	TriggeredAt    time.Time
	DashboardURL   string
}

func (d alertData) triggeredAtUTC() string {
	return d.TriggeredAt.UTC().Format("2006-01-02 15:04:05 UTC")
}

// DispatchResult reports one channel's outcome. It is not persisted;
// only event.notification_sent survives.
type DispatchResult struct {
	ChannelType string
	Success     bool
	Error       string
	Retried     bool
}
