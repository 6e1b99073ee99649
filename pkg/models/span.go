package models

import (
	"time"

	"github.com/google/uuid"
)

// Span type values stored in the span_type column.
const (
	SpanTypeSpan    = "span"
	SpanTypePending = "pending_span"
	SpanTypeLog     = "log"
)

// Status code values stored in the status_code column.
const (
	StatusUnset = "UNSET"
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// SpanRecord is one immutable row in the spans fact table. Built once by the
// OTLP decoder during ingestion and never mutated afterwards.
type SpanRecord struct {
	OrgID           uuid.UUID         `json:"org_id"`
	ProjectID       uuid.UUID         `json:"project_id"`
	TraceID         string            `json:"trace_id"`
	SpanID          string            `json:"span_id"`
	ParentSpanID    string            `json:"parent_span_id"`
	SpanName        string            `json:"span_name"`
	SpanType        string            `json:"span_type"`
	ServiceName     string            `json:"service_name"`
	Framework       string            `json:"framework"`
	Environment     string            `json:"environment"`
	Kind            string            `json:"kind"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	DurationMS      float64           `json:"duration_ms"`
	StatusCode      string            `json:"status_code"`
	StatusMessage   string            `json:"status_message"`
	HTTPMethod      string            `json:"http_method"`
	HTTPRoute       string            `json:"http_route"`
	HTTPStatusCode  uint16            `json:"http_status_code"`
	RequestBody     string            `json:"request_body"`
	ResponseBody    string            `json:"response_body"`
	RequestHeaders  string            `json:"request_headers"`
	ResponseHeaders string            `json:"response_headers"`
	Attributes      map[string]string `json:"attributes"`
	RowSizeBytes    uint32            `json:"row_size_bytes"`
}

// SpanSummary is the lightweight projection broadcast to live stream
// subscribers. Bodies, headers and the attribute map are deliberately
// excluded to keep SSE payloads small.
type SpanSummary struct {
	TraceID        string  `json:"trace_id"`
	SpanID         string  `json:"span_id"`
	ParentSpanID   string  `json:"parent_span_id"`
	SpanName       string  `json:"span_name"`
	SpanType       string  `json:"span_type"`
	ServiceName    string  `json:"service_name"`
	Kind           string  `json:"kind"`
	StartTime      string  `json:"start_time"`
	DurationMS     float64 `json:"duration_ms"`
	StatusCode     string  `json:"status_code"`
	HTTPMethod     string  `json:"http_method"`
	HTTPRoute      string  `json:"http_route"`
	HTTPStatusCode uint16  `json:"http_status_code"`
}

// Summary builds the SpanSummary projection of a record.
func (s *SpanRecord) Summary() SpanSummary {
	return SpanSummary{
		TraceID:        s.TraceID,
		SpanID:         s.SpanID,
		ParentSpanID:   s.ParentSpanID,
		SpanName:       s.SpanName,
		SpanType:       s.SpanType,
		ServiceName:    s.ServiceName,
		Kind:           s.Kind,
		StartTime:      s.StartTime.UTC().Format(time.RFC3339Nano),
		DurationMS:     s.DurationMS,
		StatusCode:     s.StatusCode,
		HTTPMethod:     s.HTTPMethod,
		HTTPRoute:      s.HTTPRoute,
		HTTPStatusCode: s.HTTPStatusCode,
	}
}
