package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tracely-io/tracely/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface for alerting configuration and state.
// Org/project/user lifecycle is owned by the management API; this interface
// exposes only the reads and event writes the pipeline needs.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error

	ListActiveRules(ctx context.Context, presetKeys []string) ([]*models.AlertRule, error)
	ListProjectRules(ctx context.Context, orgID, projectID uuid.UUID) ([]*models.AlertRule, error)

	GetOpenEvent(ctx context.Context, ruleID uuid.UUID) (*models.AlertEvent, error)
	CreateAlertEvent(ctx context.Context, event *models.AlertEvent) error
	MarkEventActive(ctx context.Context, eventID uuid.UUID, metricValue float64) error
	ResolveEvent(ctx context.Context, eventID uuid.UUID, resolvedAt time.Time) error
	AcknowledgeEvent(ctx context.Context, eventID uuid.UUID) error
	SetNotificationSent(ctx context.Context, eventID uuid.UUID, sent bool) error

	ListEnabledChannels(ctx context.Context, projectID uuid.UUID) ([]*models.NotificationChannel, error)
	GetOrgAdminEmails(ctx context.Context, orgID uuid.UUID) ([]string, error)
	GetProjectInfo(ctx context.Context, projectID uuid.UUID) (*models.ProjectInfo, error)
}
