package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/tracely-io/tracely/internal/api/middleware"
	"github.com/tracely-io/tracely/internal/otlp"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/internal/stream"
	"github.com/tracely-io/tracely/pkg/models"
)

// --- fakes ---

type fakeIngester struct {
	mu        sync.Mutex
	gotRaw    []byte
	gotOrg    uuid.UUID
	gotProj   uuid.UUID
	spanCount int
	err       error
}

func (f *fakeIngester) Ingest(ctx context.Context, raw []byte, orgID, projectID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotRaw = raw
	f.gotOrg = orgID
	f.gotProj = projectID
	return f.spanCount, f.err
}

type fakeRuleStore struct {
	store.Store
	rules []*models.AlertRule
	err   error
}

func (f *fakeRuleStore) ListProjectRules(ctx context.Context, orgID, projectID uuid.UUID) ([]*models.AlertRule, error) {
	return f.rules, f.err
}

func authedRequest(method, target string, body []byte, orgID, projectID uuid.UUID) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := mw.SetOrgID(req.Context(), orgID)
	ctx = mw.SetProjectID(ctx, projectID)
	return req.WithContext(ctx)
}

// --- ingest ---

func TestIngest_EmptyBody(t *testing.T) {
	h := NewIngestHandler(&fakeIngester{})

	req := authedRequest("POST", "/v1/traces", []byte{}, uuid.New(), uuid.New())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Empty request body")
}

func TestIngest_MalformedPayload(t *testing.T) {
	ing := &fakeIngester{err: fmt.Errorf("%w: unmarshal failed", otlp.ErrMalformedPayload)}
	h := NewIngestHandler(ing)

	req := authedRequest("POST", "/v1/traces", []byte("garbage"), uuid.New(), uuid.New())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "malformed")
}

func TestIngest_StoreFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("insert spans: connection refused")}
	h := NewIngestHandler(ing)

	req := authedRequest("POST", "/v1/traces", []byte("payload"), uuid.New(), uuid.New())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIngest_Success(t *testing.T) {
	orgID, projectID := uuid.New(), uuid.New()
	ing := &fakeIngester{spanCount: 3}
	h := NewIngestHandler(ing)

	req := authedRequest("POST", "/v1/traces", []byte("payload"), orgID, projectID)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// OTLP convention: 200 with an empty body.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []byte("payload"), ing.gotRaw)
	assert.Equal(t, orgID, ing.gotOrg)
	assert.Equal(t, projectID, ing.gotProj)
}

func TestIngest_Unauthenticated(t *testing.T) {
	h := NewIngestHandler(&fakeIngester{})

	req := httptest.NewRequest("POST", "/v1/traces", strings.NewReader("payload"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- alert templates ---

func TestAlertTemplates_MergesActivationStatus(t *testing.T) {
	orgID, projectID := uuid.New(), uuid.New()
	ruleID := uuid.New()
	st := &fakeRuleStore{rules: []*models.AlertRule{{
		ID:              ruleID,
		OrgID:           orgID,
		ProjectID:       projectID,
		PresetKey:       "high_error_rate",
		ThresholdValue:  7.5,
		DurationSeconds: 600,
		IsActive:        true,
	}}}
	h := NewAlertTemplatesHandler(st)

	req := authedRequest("GET", "/v1/alerts/templates", nil, orgID, projectID)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []AlertTemplate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 6)

	byKey := make(map[string]AlertTemplate)
	for _, tpl := range body.Data {
		byKey[tpl.Key] = tpl
	}

	activated := byKey["high_error_rate"]
	assert.True(t, activated.IsActive)
	assert.Equal(t, ruleID.String(), activated.RuleID)
	require.NotNil(t, activated.ThresholdValue)
	assert.Equal(t, 7.5, *activated.ThresholdValue)

	dormant := byKey["traffic_surge"]
	assert.False(t, dormant.IsActive)
	assert.Empty(t, dormant.RuleID)
	assert.Nil(t, dormant.ThresholdValue)
}

func TestAlertTemplates_StoreError(t *testing.T) {
	h := NewAlertTemplatesHandler(&fakeRuleStore{err: errors.New("db down")})

	req := authedRequest("GET", "/v1/alerts/templates", nil, uuid.New(), uuid.New())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- stream ---

func streamRequest(t *testing.T, projectID uuid.UUID) *http.Request {
	t.Helper()
	req := authedRequest("GET", "/v1/stream/"+projectID.String(), nil, uuid.New(), projectID)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("projectID", projectID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestStream_HeartbeatWhenIdle(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = 20 * time.Millisecond
	defer func() { heartbeatInterval = old }()

	manager := stream.NewManager()
	h := NewStreamHandler(manager)

	projectID := uuid.New()
	req := streamRequest(t, projectID)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "event: heartbeat")

	// Heartbeat payload carries a parseable timestamp.
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			Timestamp string `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		_, err := time.Parse(time.RFC3339, payload.Timestamp)
		require.NoError(t, err)
		return
	}
	t.Fatal("no data line in SSE body")
}

func TestStream_DeliversSpansAndUnsubscribesOnClose(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = time.Minute
	defer func() { heartbeatInterval = old }()

	manager := stream.NewManager()
	h := NewStreamHandler(manager)

	projectID := uuid.New()
	req := streamRequest(t, projectID)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	// Wait for the subscription to register, then publish.
	require.Eventually(t, func() bool {
		return manager.ConnectionCount(projectID) == 1
	}, time.Second, 5*time.Millisecond)

	manager.Broadcast(projectID, []*models.SpanSummary{{SpanID: "abc123", SpanName: "GET /orders"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event: span")
	assert.Contains(t, body, "GET /orders")
	assert.Equal(t, 0, manager.ConnectionCount(projectID))
}

func TestStream_SpanTrafficDefersHeartbeat(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = 100 * time.Millisecond
	defer func() { heartbeatInterval = old }()

	manager := stream.NewManager()
	h := NewStreamHandler(manager)

	projectID := uuid.New()
	req := streamRequest(t, projectID)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return manager.ConnectionCount(projectID) == 1
	}, time.Second, 5*time.Millisecond)

	// A span halfway through the heartbeat window restarts the idle
	// clock, so no heartbeat lands inside the original window.
	time.Sleep(50 * time.Millisecond)
	manager.Broadcast(projectID, []*models.SpanSummary{{SpanID: "abc123", SpanName: "GET /live"}})
	time.Sleep(90 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event: span")
	assert.NotContains(t, body, "event: heartbeat")
}

func TestStream_RejectsForeignProject(t *testing.T) {
	manager := stream.NewManager()
	h := NewStreamHandler(manager)

	pathProject := uuid.New()
	req := authedRequest("GET", "/v1/stream/"+pathProject.String(), nil, uuid.New(), uuid.New())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("projectID", pathProject.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, manager.ConnectionCount(pathProject))
}
