package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	URL         string         `json:"url,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

var discordSeverityEmoji = map[string]string{
	"critical": ":red_circle:",
	"warning":  ":orange_circle:",
	"info":     ":blue_circle:",
}

func buildDiscordMessage(data alertData) discordMessage {
	emoji, ok := discordSeverityEmoji[data.Severity]
	if !ok {
		emoji = ":white_circle:"
	}

	description := fmt.Sprintf(
		"**Project:** %s\n**Severity:** %s\n\n**%s:** `%.2f` exceeds threshold `%.2f`",
		data.ProjectName,
		strings.ToUpper(data.Severity),
		data.MetricName,
		data.MetricValue,
		data.ThresholdValue,
	)

	return discordMessage{
		Embeds: []discordEmbed{{
			Title:       fmt.Sprintf("%s Alert: %s", emoji, data.AlertName),
			Description: description,
			Color:       discordColor(data.Severity),
			URL:         data.DashboardURL,
			Footer:      &discordFooter{Text: "Triggered at " + data.triggeredAtUTC()},
			Timestamp:   data.TriggeredAt.UTC().Format(time.RFC3339),
		}},
	}
}

// sendDiscord posts an alert embed to a Discord webhook. Discord answers
// 204 No Content on success, some proxies return 200.
func (d *Dispatcher) sendDiscord(ctx context.Context, webhookURL string, data alertData) error {
	return d.postWebhook(ctx, webhookURL, buildDiscordMessage(data), func(status int) bool {
		return status == http.StatusOK || status == http.StatusNoContent
	})
}

// TestDiscordWebhook sends a configuration test message to a Discord
// webhook.
func (d *Dispatcher) TestDiscordWebhook(ctx context.Context, webhookURL string) error {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       ":white_check_mark: Tracely Test Notification",
			Description: "Your Discord webhook is configured correctly!",
			Color:       0x00FF00,
		}},
	}
	return d.postWebhook(ctx, webhookURL, msg, func(status int) bool {
		return status == http.StatusOK || status == http.StatusNoContent
	})
}
