package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackButton struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

type slackBlock struct {
	Type     string     `json:"type"`
	Text     *slackText `json:"text,omitempty"`
	Elements []any      `json:"elements,omitempty"`
}

type slackMessage struct {
	Blocks      []slackBlock      `json:"blocks"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color string `json:"color"`
}

var slackSeverityEmoji = map[string]string{
	"critical": ":red_circle:",
	"warning":  ":large_orange_circle:",
	"info":     ":large_blue_circle:",
}

func buildSlackMessage(data alertData) slackMessage {
	emoji, ok := slackSeverityEmoji[data.Severity]
	if !ok {
		emoji = ":white_circle:"
	}

	body := fmt.Sprintf(
		"*Project:* %s\n*Severity:* %s\n\n*%s:* `%.2f` (threshold: `%.2f`)",
		data.ProjectName,
		strings.ToUpper(data.Severity),
		data.MetricName,
		data.MetricValue,
		data.ThresholdValue,
	)

	return slackMessage{
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{
					Type:  "plain_text",
					Text:  fmt.Sprintf("%s Alert: %s", emoji, data.AlertName),
					Emoji: true,
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: body},
			},
			{
				Type: "context",
				Elements: []any{
					slackText{Type: "plain_text", Text: "Triggered at " + data.triggeredAtUTC()},
				},
			},
			{
				Type: "actions",
				Elements: []any{
					slackButton{
						Type:  "button",
						Text:  slackText{Type: "plain_text", Text: "View Dashboard", Emoji: true},
						URL:   data.DashboardURL,
						Style: "primary",
					},
				},
			},
		},
		Attachments: []slackAttachment{{Color: severityColor(data.Severity)}},
	}
}

// sendSlack posts an alert to a Slack incoming webhook. Slack answers a
// plain 200 on success.
func (d *Dispatcher) sendSlack(ctx context.Context, webhookURL string, data alertData) error {
	return d.postWebhook(ctx, webhookURL, buildSlackMessage(data), func(status int) bool {
		return status == http.StatusOK
	})
}

// TestSlackWebhook sends a configuration test message to a Slack webhook.
func (d *Dispatcher) TestSlackWebhook(ctx context.Context, webhookURL string) error {
	msg := slackMessage{
		Blocks: []slackBlock{{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: ":white_check_mark: *Tracely Test Notification*\nYour Slack webhook is configured correctly!",
			},
		}},
	}
	return d.postWebhook(ctx, webhookURL, msg, func(status int) bool {
		return status == http.StatusOK
	})
}

// postWebhook JSON-posts a payload and validates the response status.
func (d *Dispatcher) postWebhook(ctx context.Context, webhookURL string, payload any, okStatus func(int) bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if !okStatus(resp.StatusCode) {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
