package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const resendEndpoint = "https://api.resend.com/emails"

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// sendEmail delivers the alert to org admins through the Resend API.
func (d *Dispatcher) sendEmail(ctx context.Context, recipients []string, data alertData) error {
	if d.resendAPIKey == "" {
		return errors.New("resend API key not configured")
	}
	if len(recipients) == 0 {
		return errors.New("no recipients specified")
	}

	payload := resendRequest{
		From:    d.resendFrom,
		To:      recipients,
		Subject: fmt.Sprintf("[Tracely Alert] %s - %s", data.AlertName, data.ProjectName),
		HTML:    alertEmailHTML(data),
		Text:    alertEmailText(data),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.resendAPIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

func alertEmailHTML(data alertData) string {
	color := severityColor(data.Severity)
	return fmt.Sprintf(`
<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 24px;">
    <div style="border-left: 4px solid %s; padding-left: 16px; margin-bottom: 24px;">
        <h2 style="color: #111; margin: 0 0 8px 0;">Alert: %s</h2>
        <p style="color: #666; margin: 0;">Project: %s</p>
    </div>

    <div style="background: #f5f5f5; padding: 16px; border-radius: 8px; margin-bottom: 24px;">
        <p style="margin: 0 0 8px 0;">
            <strong>Severity:</strong>
            <span style="color: %s; text-transform: uppercase;">%s</span>
        </p>
        <p style="margin: 0 0 8px 0;"><strong>%s:</strong> %.2f</p>
        <p style="margin: 0 0 8px 0;"><strong>Threshold:</strong> %.2f</p>
        <p style="margin: 0; color: #666;"><strong>Triggered at:</strong> %s</p>
    </div>

    <a href="%s"
       style="display: inline-block; padding: 12px 24px; background: #0f172a;
              color: #fff; text-decoration: none; border-radius: 6px;">
        View Dashboard
    </a>

    <p style="color: #999; font-size: 12px; margin-top: 24px;">
        You're receiving this because you're an admin of this organization or created this alert.
    </p>
</div>`,
		color, data.AlertName, data.ProjectName, color, data.Severity,
		data.MetricName, data.MetricValue, data.ThresholdValue,
		data.triggeredAtUTC(), data.DashboardURL)
}

func alertEmailText(data alertData) string {
	return fmt.Sprintf(`Alert: %s
Project: %s
Severity: %s

%s: %.2f
Threshold: %.2f

Triggered at: %s

View Dashboard: %s

---
You're receiving this because you're an admin of this organization or created this alert.
`,
		data.AlertName, data.ProjectName, strings.ToUpper(data.Severity),
		data.MetricName, data.MetricValue, data.ThresholdValue,
		data.triggeredAtUTC(), data.DashboardURL)
}
