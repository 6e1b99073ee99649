// Package otlp decodes OTLP/HTTP protobuf trace-export payloads into span
// rows for the columnar store. Pure and stateless: no I/O happens here.
package otlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	collectortracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/tracely-io/tracely/pkg/models"
)

// ErrMalformedPayload is returned for empty or unparseable payloads. Always
// propagated to the client as a 400, never silently dropped.
var ErrMalformedPayload = errors.New("malformed OTLP protobuf payload")

// spanKindNames maps OTLP span kind enum values to column values.
// Unspecified and unknown kinds are treated as INTERNAL.
var spanKindNames = map[tracev1.Span_SpanKind]string{
	tracev1.Span_SPAN_KIND_UNSPECIFIED: "INTERNAL",
	tracev1.Span_SPAN_KIND_INTERNAL:    "INTERNAL",
	tracev1.Span_SPAN_KIND_SERVER:      "SERVER",
	tracev1.Span_SPAN_KIND_CLIENT:      "CLIENT",
	tracev1.Span_SPAN_KIND_PRODUCER:    "PRODUCER",
	tracev1.Span_SPAN_KIND_CONSUMER:    "CONSUMER",
}

// statusCodeNames maps OTLP status codes to column values. Unknown codes
// map to UNSET.
var statusCodeNames = map[tracev1.Status_StatusCode]string{
	tracev1.Status_STATUS_CODE_UNSET: models.StatusUnset,
	tracev1.Status_STATUS_CODE_OK:    models.StatusOK,
	tracev1.Status_STATUS_CODE_ERROR: models.StatusError,
}

// Attribute bag hardening limits. The generic map keeps at most
// maxAttributes entries and truncates values longer than maxAttributeValue
// bytes; promoted columns are unaffected.
const (
	maxAttributes     = 128
	maxAttributeValue = 8192

	// eventAttrHeadroom is reserved for the keys applyEvents may add
	// (span.events, exception.type, exception.message) so the combined
	// map stays within maxAttributes.
	eventAttrHeadroom = 3
)

// Decode parses raw ExportTraceServiceRequest bytes and maps every span to a
// SpanRecord. payloadSize is divided evenly across spans as row_size_bytes
// (integer truncation; the sum never exceeds payloadSize).
func Decode(raw []byte, orgID, projectID uuid.UUID) ([]models.SpanRecord, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	req := &collectortracev1.ExportTraceServiceRequest{}
	if err := proto.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	totalSpans := 0
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			totalSpans += len(ss.GetSpans())
		}
	}
	if totalSpans == 0 {
		return nil, nil
	}
	perSpanBytes := uint32(len(raw) / totalSpans)

	records := make([]models.SpanRecord, 0, totalSpans)
	for _, rs := range req.GetResourceSpans() {
		var resourceAttrs map[string]string
		if rs.Resource != nil {
			resourceAttrs = flattenAttributes(rs.Resource.Attributes)
		}
		serviceName := attrOr(resourceAttrs, "service.name", "unknown")
		framework := resourceAttrs["tracely.framework"]
		environment := resourceAttrs["tracely.environment"]

		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				rec := mapSpan(span, orgID, projectID, perSpanBytes)
				rec.ServiceName = serviceName
				rec.Framework = framework
				rec.Environment = environment
				records = append(records, rec)
			}
		}
	}

	return records, nil
}

func mapSpan(span *tracev1.Span, orgID, projectID uuid.UUID, rowSize uint32) models.SpanRecord {
	attrs := flattenAttributes(span.Attributes)

	spanType := attrs["tracely.span_type"]
	switch spanType {
	case models.SpanTypeSpan, models.SpanTypePending, models.SpanTypeLog:
	default:
		spanType = models.SpanTypeSpan
	}

	statusCode := models.StatusUnset
	statusMessage := ""
	if span.Status != nil {
		if name, ok := statusCodeNames[span.Status.Code]; ok {
			statusCode = name
		}
		statusMessage = span.Status.Message
	}

	kind, ok := spanKindNames[span.Kind]
	if !ok {
		kind = "INTERNAL"
	}

	httpMethod := firstAttr(attrs, "tracely.http.method", "http.request.method", "http.method")
	httpRoute := firstAttr(attrs, "tracely.http.route", "http.route")
	httpStatus := parseStatusCode(firstAttr(attrs, "tracely.http.status_code", "http.response.status_code", "http.status_code"))

	requestBody := firstAttr(attrs, "tracely.request.body", "http.request.body")
	responseBody := firstAttr(attrs, "tracely.response.body", "http.response.body")
	requestHeaders := attrs["tracely.request.headers"]
	if requestHeaders == "" {
		requestHeaders = collectHeaders(attrs, "http.request.header.")
	}
	responseHeaders := attrs["tracely.response.headers"]
	if responseHeaders == "" {
		responseHeaders = collectHeaders(attrs, "http.response.header.")
	}

	general := buildGeneralAttributes(attrs)
	applyEvents(span.Events, general)

	return models.SpanRecord{
		OrgID:           orgID,
		ProjectID:       projectID,
		TraceID:         hexEncode(span.TraceId),
		SpanID:          hexEncode(span.SpanId),
		ParentSpanID:    hexEncode(span.ParentSpanId),
		SpanName:        span.Name,
		SpanType:        spanType,
		Kind:            kind,
		StartTime:       unixNanoToTime(span.StartTimeUnixNano),
		EndTime:         unixNanoToTime(span.EndTimeUnixNano),
		DurationMS:      durationMS(span.StartTimeUnixNano, span.EndTimeUnixNano),
		StatusCode:      statusCode,
		StatusMessage:   statusMessage,
		HTTPMethod:      httpMethod,
		HTTPRoute:       httpRoute,
		HTTPStatusCode:  httpStatus,
		RequestBody:     requestBody,
		ResponseBody:    responseBody,
		RequestHeaders:  requestHeaders,
		ResponseHeaders: responseHeaders,
		Attributes:      general,
		RowSizeBytes:    rowSize,
	}
}

// promotedAttrs are keys mapped to dedicated columns; they are stripped from
// the generic attribute map to avoid duplication.
var promotedAttrs = map[string]struct{}{
	"http.request.method":       {},
	"http.method":               {},
	"http.route":                {},
	"http.response.status_code": {},
	"http.status_code":          {},
	"http.request.body":         {},
	"http.response.body":        {},
}

func buildGeneralAttributes(attrs map[string]string) map[string]string {
	general := make(map[string]string)
	for k, v := range attrs {
		if strings.HasPrefix(k, "tracely.") {
			continue
		}
		if _, promoted := promotedAttrs[k]; promoted {
			continue
		}
		if strings.HasPrefix(k, "http.request.header.") || strings.HasPrefix(k, "http.response.header.") {
			continue
		}
		if len(general) >= maxAttributes-eventAttrHeadroom {
			continue
		}
		if len(v) > maxAttributeValue {
			v = v[:maxAttributeValue]
		}
		general[k] = v
	}
	return general
}

// spanEvent is the serialized shape of one span event inside the
// span.events JSON array attribute.
type spanEvent struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// applyEvents serializes span events into the span.events attribute. An
// exception event additionally promotes its type and message to top-level
// attributes so downstream consumers need not parse event payloads; legacy
// error.type / error.message spellings are accepted.
func applyEvents(events []*tracev1.Span_Event, general map[string]string) {
	if len(events) == 0 {
		return
	}

	list := make([]spanEvent, 0, len(events))
	for _, ev := range events {
		evAttrs := flattenAttributes(ev.Attributes)

		list = append(list, spanEvent{
			Timestamp: unixNanoToTime(ev.TimeUnixNano).UTC().Format(time.RFC3339Nano),
			Name:      ev.Name,
			Level:     attrOr(evAttrs, "level", "info"),
			Message:   attrOr(evAttrs, "message", ev.Name),
		})

		if ev.Name == "exception" {
			if typ := firstAttr(evAttrs, "exception.type", "error.type"); typ != "" {
				general["exception.type"] = typ
			}
			if msg := firstAttr(evAttrs, "exception.message", "error.message"); msg != "" {
				general["exception.message"] = msg
			}
		}
	}

	if b, err := json.Marshal(list); err == nil {
		general["span.events"] = string(b)
	}
}

// collectHeaders reassembles per-header attributes (e.g.
// http.request.header.content_type) into a single JSON object string.
// Returns "" when no header attributes exist.
func collectHeaders(attrs map[string]string, prefix string) string {
	var headers map[string]string
	for k, v := range attrs {
		name := strings.TrimPrefix(k, prefix)
		if name == k || name == "" {
			continue
		}
		if headers == nil {
			headers = make(map[string]string)
		}
		headers[strings.ReplaceAll(name, "_", "-")] = v
	}
	if headers == nil {
		return ""
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(b)
}

func attrOr(attrs map[string]string, key, def string) string {
	if v, ok := attrs[key]; ok && v != "" {
		return v
	}
	return def
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := attrs[k]; v != "" {
			return v
		}
	}
	return ""
}

func parseStatusCode(s string) uint16 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

// durationMS computes span duration in milliseconds, 0 when either
// timestamp is missing.
func durationMS(startNanos, endNanos uint64) float64 {
	if startNanos == 0 || endNanos == 0 {
		return 0
	}
	return float64(int64(endNanos)-int64(startNanos)) / 1e6
}
