package handler

import (
	"net/http"

	"github.com/tracely-io/tracely/internal/api/response"
	"github.com/tracely-io/tracely/internal/cache"
	"github.com/tracely-io/tracely/internal/spanstore"
	"github.com/tracely-io/tracely/internal/store"
)

// NewHealthHandler checks database, cache, and columnar store
// connectivity.
func NewHealthHandler(st store.Store, c cache.Cache, spans spanstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"columnar": "ok",
		}

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := spans.Ping(r.Context()); err != nil {
			checks["columnar"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
