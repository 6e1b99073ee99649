// Package spanstore persists span facts to ClickHouse and serves the
// minute-aggregated reads the alert evaluator needs.
package spanstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/tracely-io/tracely/internal/config"
	"github.com/tracely-io/tracely/pkg/models"
)

// Store is the columnar store interface. The ingestion writer performs
// exactly one InsertSpans call per inbound batch; the evaluator reads the
// metrics_1m rollup through the window/baseline queries.
type Store interface {
	Ping(ctx context.Context) error
	InsertSpans(ctx context.Context, spans []models.SpanRecord) error
	WindowP95(ctx context.Context, orgID, projectID uuid.UUID, windowMinutes int) (float64, error)
	BaselineP95(ctx context.Context, orgID, projectID uuid.UUID) (float64, error)
	WindowCount(ctx context.Context, orgID, projectID uuid.UUID, windowMinutes int) (uint64, error)
	BaselineCount(ctx context.Context, orgID, projectID uuid.UUID) (uint64, error)
}

// ClickHouseStore implements Store using clickhouse-go/v2.
type ClickHouseStore struct {
	conn driver.Conn
}

// Connect opens a native-protocol ClickHouse connection and verifies it.
func Connect(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// NewWithConn wraps an existing connection. Used by tests.
func NewWithConn(conn driver.Conn) *ClickHouseStore {
	return &ClickHouseStore{conn: conn}
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// InitSchema creates the spans table and the metrics_1m materialized view.
// The view is dropped and recreated so filter changes take effect.
func (s *ClickHouseStore) InitSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, spansTableDDL); err != nil {
		return fmt.Errorf("create spans table: %w", err)
	}
	slog.Info("clickhouse: spans table ready")

	if err := s.conn.Exec(ctx, dropMetricsViewDDL); err != nil {
		return fmt.Errorf("drop metrics_1m view: %w", err)
	}
	if err := s.conn.Exec(ctx, metricsViewDDL); err != nil {
		return fmt.Errorf("create metrics_1m view: %w", err)
	}
	slog.Info("clickhouse: metrics_1m materialized view ready")

	return nil
}

// InsertSpans writes all rows in a single prepared batch, columns in the
// fixed table order.
func (s *ClickHouseStore) InsertSpans(ctx context.Context, spans []models.SpanRecord) error {
	if len(spans) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, insertSpansSQL)
	if err != nil {
		return fmt.Errorf("prepare spans batch: %w", err)
	}

	for _, sp := range spans {
		if err := batch.Append(
			sp.OrgID,
			sp.ProjectID,
			sp.TraceID,
			sp.SpanID,
			sp.ParentSpanID,
			sp.SpanName,
			sp.SpanType,
			sp.ServiceName,
			sp.Framework,
			sp.Environment,
			sp.Kind,
			sp.StartTime,
			sp.EndTime,
			sp.DurationMS,
			sp.StatusCode,
			sp.StatusMessage,
			sp.HTTPMethod,
			sp.HTTPRoute,
			sp.HTTPStatusCode,
			sp.RequestBody,
			sp.ResponseBody,
			sp.RequestHeaders,
			sp.ResponseHeaders,
			sp.Attributes,
			sp.RowSizeBytes,
		); err != nil {
			return fmt.Errorf("append span row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send spans batch: %w", err)
	}
	return nil
}

// WindowP95 returns the merged P95 duration over the last windowMinutes.
func (s *ClickHouseStore) WindowP95(ctx context.Context, orgID, projectID uuid.UUID, windowMinutes int) (float64, error) {
	return s.queryFloat(ctx, windowP95SQL, orgID, projectID, windowMinutes)
}

// BaselineP95 returns the merged P95 duration one to two hours prior.
func (s *ClickHouseStore) BaselineP95(ctx context.Context, orgID, projectID uuid.UUID) (float64, error) {
	return s.queryFloat(ctx, baselineP95SQL, orgID, projectID)
}

// WindowCount returns the request volume over the last windowMinutes.
func (s *ClickHouseStore) WindowCount(ctx context.Context, orgID, projectID uuid.UUID, windowMinutes int) (uint64, error) {
	return s.queryCount(ctx, windowCountSQL, orgID, projectID, windowMinutes)
}

// BaselineCount returns the request volume one to two hours prior.
func (s *ClickHouseStore) BaselineCount(ctx context.Context, orgID, projectID uuid.UUID) (uint64, error) {
	return s.queryCount(ctx, baselineCountSQL, orgID, projectID)
}

func (s *ClickHouseStore) queryFloat(ctx context.Context, query string, args ...any) (float64, error) {
	var v *float64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("query p95: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func (s *ClickHouseStore) queryCount(ctx context.Context, query string, args ...any) (uint64, error) {
	var v uint64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return v, nil
}
