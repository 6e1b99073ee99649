package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tracely-io/tracely/internal/alerting"
	"github.com/tracely-io/tracely/internal/config"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/pkg/models"
)

// Dispatcher fans one alert event out to email and every enabled webhook
// channel of the project.
type Dispatcher struct {
	store  store.Store
	client *http.Client

	frontendURL    string
	resendAPIKey   string
	resendFrom     string
	resendEndpoint string
	retryDelay     time.Duration
}

func NewDispatcher(st store.Store, cfg config.NotifyConfig) *Dispatcher {
	return &Dispatcher{
		store:          st,
		client:         &http.Client{Timeout: cfg.WebhookTimeout},
		frontendURL:    cfg.FrontendURL,
		resendAPIKey:   cfg.ResendAPIKey,
		resendFrom:     cfg.ResendFromEmail,
		resendEndpoint: resendEndpoint,
		retryDelay:     cfg.RetryDelay,
	}
}

func (d *Dispatcher) dashboardURL(orgSlug, projectSlug string) string {
	return fmt.Sprintf("%s/%s/%s/alerts", d.frontendURL, orgSlug, projectSlug)
}

// Dispatch notifies all channels for an event and marks the event's
// notification_sent when at least one channel succeeded. Channel failures
// retry once after the configured delay and never affect each other.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.AlertEvent, rule *models.AlertRule, orgSlug, projectSlug string) []DispatchResult {
	data := alertData{
		AlertName:      rule.Name,
		Severity:       alerting.Severity(rule.PresetKey),
		MetricName:     alerting.MetricName(rule.PresetKey),
		MetricValue:    event.MetricValue,
		ThresholdValue: event.ThresholdValue,
		TriggeredAt:    event.TriggeredAt,
		DashboardURL:   d.dashboardURL(orgSlug, projectSlug),
	}

	project, err := d.store.GetProjectInfo(ctx, rule.ProjectID)
	if err != nil {
		slog.Warn("project lookup failed for notification", "project_id", rule.ProjectID, "error", err)
		data.ProjectName = "Unknown Project"
	} else {
		data.ProjectName = project.Name
	}

	channels, err := d.store.ListEnabledChannels(ctx, rule.ProjectID)
	if err != nil {
		slog.Warn("channel lookup failed, email only", "project_id", rule.ProjectID, "error", err)
		channels = nil
	}

	var (
		mu      sync.Mutex
		results []DispatchResult
		wg      sync.WaitGroup
	)
	dispatch := func(channelType string, send func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.dispatchWithRetry(ctx, channelType, send)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}

	// Email goes out on every tier.
	dispatch(models.ChannelEmail, func(ctx context.Context) error {
		recipients, err := d.store.GetOrgAdminEmails(ctx, rule.OrgID)
		if err != nil {
			return fmt.Errorf("load admin recipients: %w", err)
		}
		return d.sendEmail(ctx, recipients, data)
	})

	for _, ch := range channels {
		webhookURL := ch.Config.WebhookURL
		switch ch.ChannelType {
		case models.ChannelSlack:
			dispatch(models.ChannelSlack, func(ctx context.Context) error {
				if webhookURL == "" {
					return fmt.Errorf("webhook URL not configured")
				}
				return d.sendSlack(ctx, webhookURL, data)
			})
		case models.ChannelDiscord:
			dispatch(models.ChannelDiscord, func(ctx context.Context) error {
				if webhookURL == "" {
					return fmt.Errorf("webhook URL not configured")
				}
				return d.sendDiscord(ctx, webhookURL, data)
			})
		}
	}

	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	slog.Info("alert notification dispatch complete",
		"event_id", event.ID,
		"succeeded", succeeded,
		"failed", len(results)-succeeded)

	if err := d.store.SetNotificationSent(ctx, event.ID, succeeded > 0); err != nil {
		slog.Warn("failed to record notification status", "event_id", event.ID, "error", err)
	}
	return results
}

// dispatchWithRetry runs a channel send and retries exactly once after
// the retry delay.
func (d *Dispatcher) dispatchWithRetry(ctx context.Context, channelType string, send func(context.Context) error) DispatchResult {
	err := send(ctx)
	if err == nil {
		return DispatchResult{ChannelType: channelType, Success: true}
	}

	slog.Info("notification dispatch failed, retrying",
		"channel", channelType, "delay", d.retryDelay, "error", err)

	select {
	case <-time.After(d.retryDelay):
	case <-ctx.Done():
		return DispatchResult{ChannelType: channelType, Error: err.Error()}
	}

	if retryErr := send(ctx); retryErr != nil {
		slog.Warn("notification retry failed", "channel", channelType, "error", retryErr)
		return DispatchResult{ChannelType: channelType, Error: retryErr.Error(), Retried: true}
	}
	slog.Info("notification retry succeeded", "channel", channelType)
	return DispatchResult{ChannelType: channelType, Success: true, Retried: true}
}

// NotifyAlert adapts the dispatcher to the scheduler's notifier hook,
// resolving dashboard slugs from the project record.
func (d *Dispatcher) NotifyAlert(ctx context.Context, event *models.AlertEvent, rule *models.AlertRule) {
	orgSlug, projectSlug := "org", "project"
	if project, err := d.store.GetProjectInfo(ctx, rule.ProjectID); err == nil {
		orgSlug, projectSlug = project.OrgSlug, project.Slug
	}
	d.Dispatch(ctx, event, rule, orgSlug, projectSlug)
}
