package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/tracely-io/tracely/internal/api/middleware"
	"github.com/tracely-io/tracely/internal/api/response"
	"github.com/tracely-io/tracely/internal/stream"
)

// heartbeatInterval is how often an idle connection receives a synthetic
// event so intermediaries keep it open. Variable for tests.
var heartbeatInterval = 15 * time.Second

// NewStreamHandler returns the handler for GET /v1/stream/{projectID}.
// It serves the project's live span feed over server-sent events. The
// API key's project must match the path.
func NewStreamHandler(manager *stream.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authProject, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing project", nil)
			return
		}

		projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid project ID", nil)
			return
		}
		if projectID != authProject {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "API key is not scoped to this project", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := manager.Subscribe(projectID)
		defer manager.Disconnect(sub)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case summary, open := <-sub.C():
				if !open {
					return
				}
				if err := writeSSE(w, "span", summary); err != nil {
					return
				}
				flusher.Flush()
				// Heartbeats mark idleness, so span traffic pushes the
				// next one out.
				heartbeat.Reset(heartbeatInterval)
			case t := <-heartbeat.C:
				payload := map[string]string{"timestamp": t.UTC().Format(time.RFC3339)}
				if err := writeSSE(w, "heartbeat", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
