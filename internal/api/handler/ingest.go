// Package handler contains the HTTP handlers for the Tracely API.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/tracely-io/tracely/internal/api/middleware"
	"github.com/tracely-io/tracely/internal/api/response"
	"github.com/tracely-io/tracely/internal/otlp"
)

// maxPayloadBytes caps one OTLP export request.
const maxPayloadBytes = 16 << 20

// Ingester decodes and persists one OTLP payload for a project.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, orgID, projectID uuid.UUID) (int, error)
}

// NewIngestHandler returns the handler for POST /v1/traces. Per the OTLP
// convention a successful export answers 200 with an empty body.
func NewIngestHandler(ing Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}
		projectID, ok := mw.GetProjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing project", nil)
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body", nil)
			return
		}
		if len(raw) == 0 {
			response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Empty request body", nil)
			return
		}

		if _, err := ing.Ingest(r.Context(), raw, orgID, projectID); err != nil {
			if errors.Is(err, otlp.ErrMalformedPayload) {
				response.Error(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store spans", nil)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
