package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracely-io/tracely/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, project_id, name, key_hash, key_prefix, last_used_at, revoked_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

// --- Alert rules ---

const ruleColumns = `id, org_id, project_id, preset_key, name, category, description,
	threshold_value, duration_seconds, comparison_operator, is_active, is_custom,
	created_at, updated_at`

func scanRule(row pgx.Row) (*models.AlertRule, error) {
	var r models.AlertRule
	err := row.Scan(&r.ID, &r.OrgID, &r.ProjectID, &r.PresetKey, &r.Name, &r.Category,
		&r.Description, &r.ThresholdValue, &r.DurationSeconds, &r.ComparisonOperator,
		&r.IsActive, &r.IsCustom, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListActiveRules(ctx context.Context, presetKeys []string) ([]*models.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules
		 WHERE is_active = TRUE AND preset_key = ANY($1)`, presetKeys)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) ListProjectRules(ctx context.Context, orgID, projectID uuid.UUID) ([]*models.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules
		 WHERE org_id = $1 AND project_id = $2`, orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// --- Alert events ---

const eventColumns = `id, rule_id, org_id, project_id, triggered_at, resolved_at,
	metric_value, threshold_value, status, cooldown_until, notification_sent,
	rule_snapshot, created_at, updated_at`

// GetOpenEvent returns the most recent event for a rule still in the
// triggered or active state.
func (s *PostgresStore) GetOpenEvent(ctx context.Context, ruleID uuid.UUID) (*models.AlertEvent, error) {
	var e models.AlertEvent
	err := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM alert_events
		 WHERE rule_id = $1 AND status IN ('triggered', 'active')
		 ORDER BY triggered_at DESC LIMIT 1`, ruleID).
		Scan(&e.ID, &e.RuleID, &e.OrgID, &e.ProjectID, &e.TriggeredAt, &e.ResolvedAt,
			&e.MetricValue, &e.ThresholdValue, &e.Status, &e.CooldownUntil,
			&e.NotificationSent, &e.RuleSnapshot, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get open event: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) CreateAlertEvent(ctx context.Context, e *models.AlertEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_events (id, rule_id, org_id, project_id, triggered_at, metric_value,
		   threshold_value, status, cooldown_until, notification_sent, rule_snapshot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.RuleID, e.OrgID, e.ProjectID, e.TriggeredAt, e.MetricValue,
		e.ThresholdValue, e.Status, e.CooldownUntil, e.NotificationSent,
		e.RuleSnapshot, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create alert event: %w", err)
	}
	return nil
}

// MarkEventActive flips an open event to active and refreshes its metric
// value in place. No new row is created while a rule is in cooldown.
func (s *PostgresStore) MarkEventActive(ctx context.Context, eventID uuid.UUID, metricValue float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_events SET status = 'active', metric_value = $2, updated_at = NOW()
		 WHERE id = $1`, eventID, metricValue)
	if err != nil {
		return fmt.Errorf("mark event active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResolveEvent(ctx context.Context, eventID uuid.UUID, resolvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_events SET status = 'resolved', resolved_at = $2, updated_at = NOW()
		 WHERE id = $1`, eventID, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AcknowledgeEvent is a manual, terminal transition.
func (s *PostgresStore) AcknowledgeEvent(ctx context.Context, eventID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_events SET status = 'acknowledged', updated_at = NOW()
		 WHERE id = $1 AND status IN ('triggered', 'active')`, eventID)
	if err != nil {
		return fmt.Errorf("acknowledge event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetNotificationSent(ctx context.Context, eventID uuid.UUID, sent bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE alert_events SET notification_sent = $2, updated_at = NOW() WHERE id = $1`,
		eventID, sent)
	if err != nil {
		return fmt.Errorf("set notification sent: %w", err)
	}
	return nil
}

// --- Notification channels ---

func (s *PostgresStore) ListEnabledChannels(ctx context.Context, projectID uuid.UUID) ([]*models.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, project_id, channel_type, config, is_enabled, created_at, updated_at
		 FROM notification_channels WHERE project_id = $1 AND is_enabled = TRUE`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.NotificationChannel
	for rows.Next() {
		var c models.NotificationChannel
		if err := rows.Scan(&c.ID, &c.OrgID, &c.ProjectID, &c.ChannelType, &c.Config,
			&c.IsEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification channel: %w", err)
		}
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

// --- Org / project lookups ---

func (s *PostgresStore) GetOrgAdminEmails(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.email FROM users u
		 JOIN org_members m ON m.user_id = u.id
		 WHERE m.org_id = $1 AND m.role IN ('admin', 'owner')`, orgID)
	if err != nil {
		return nil, fmt.Errorf("get org admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (s *PostgresStore) GetProjectInfo(ctx context.Context, projectID uuid.UUID) (*models.ProjectInfo, error) {
	var p models.ProjectInfo
	err := s.pool.QueryRow(ctx,
		`SELECT p.id, p.org_id, p.name, p.slug, o.slug
		 FROM projects p JOIN organizations o ON o.id = p.org_id
		 WHERE p.id = $1`, projectID).
		Scan(&p.ID, &p.OrgID, &p.Name, &p.Slug, &p.OrgSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project info: %w", err)
	}
	return &p, nil
}
