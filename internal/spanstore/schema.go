package spanstore

const spansTableDDL = `
CREATE TABLE IF NOT EXISTS spans (
    org_id           UUID,
    project_id       UUID,
    trace_id         String,
    span_id          String,
    parent_span_id   String,
    span_name        String,
    span_type        Enum8('span'=1, 'pending_span'=2, 'log'=3),
    service_name     String,
    framework        String,
    environment      String,
    kind             Enum8('INTERNAL'=0, 'SERVER'=1, 'CLIENT'=2, 'PRODUCER'=3, 'CONSUMER'=4),
    start_time       DateTime64(9),
    end_time         DateTime64(9),
    duration_ms      Float64,
    status_code      Enum8('UNSET'=0, 'OK'=1, 'ERROR'=2),
    status_message   String,
    http_method      LowCardinality(String),
    http_route       String,
    http_status_code UInt16,
    request_body     String,
    response_body    String,
    request_headers  String,
    response_headers String,
    attributes       Map(String, String),
    row_size_bytes   UInt32
)
ENGINE = MergeTree()
PARTITION BY (org_id, toYYYYMMDD(start_time))
ORDER BY (org_id, project_id, service_name, start_time, trace_id, span_id)
TTL toDateTime(start_time) + INTERVAL 90 DAY DELETE
`

// metrics_1m aggregates request-like spans (server/internal kind) into
// one-minute buckets consumed by the threshold alert evaluator and the
// dashboard read path.
const metricsViewDDL = `
CREATE MATERIALIZED VIEW IF NOT EXISTS metrics_1m
ENGINE = AggregatingMergeTree()
PARTITION BY (org_id, toYYYYMMDD(time_bucket))
ORDER BY (org_id, project_id, service_name, http_route, time_bucket)
AS SELECT
    org_id, project_id, service_name, http_route,
    toStartOfMinute(start_time) AS time_bucket,
    countState() AS request_count,
    countIfState(status_code = 'ERROR') AS error_count,
    avgState(duration_ms) AS avg_duration,
    quantileState(0.5)(duration_ms) AS p50_duration,
    quantileState(0.95)(duration_ms) AS p95_duration,
    maxState(duration_ms) AS max_duration
FROM spans
WHERE span_type = 'span' AND kind IN ('SERVER', 'INTERNAL')
GROUP BY org_id, project_id, service_name, http_route, time_bucket
`

const dropMetricsViewDDL = `DROP VIEW IF EXISTS metrics_1m`

// insertSpansSQL fixes the batch column order; the ingestion writer appends
// rows in exactly this order.
const insertSpansSQL = `
INSERT INTO spans (
    org_id, project_id, trace_id, span_id, parent_span_id, span_name,
    span_type, service_name, framework, environment, kind, start_time,
    end_time, duration_ms, status_code, status_message, http_method,
    http_route, http_status_code, request_body, response_body,
    request_headers, response_headers, attributes, row_size_bytes
)`

const windowP95SQL = `
SELECT quantileMerge(0.95)(p95_duration)
FROM metrics_1m
WHERE org_id = ? AND project_id = ?
  AND time_bucket >= now() - INTERVAL ? MINUTE
`

const baselineP95SQL = `
SELECT quantileMerge(0.95)(p95_duration)
FROM metrics_1m
WHERE org_id = ? AND project_id = ?
  AND time_bucket BETWEEN now() - INTERVAL 2 HOUR AND now() - INTERVAL 1 HOUR
`

const windowCountSQL = `
SELECT countMerge(request_count)
FROM metrics_1m
WHERE org_id = ? AND project_id = ?
  AND time_bucket >= now() - INTERVAL ? MINUTE
`

const baselineCountSQL = `
SELECT countMerge(request_count)
FROM metrics_1m
WHERE org_id = ? AND project_id = ?
  AND time_bucket BETWEEN now() - INTERVAL 2 HOUR AND now() - INTERVAL 1 HOUR
`
