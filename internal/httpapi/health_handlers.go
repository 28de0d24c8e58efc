package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"jobharvest-engine/internal/status"
	"jobharvest-engine/internal/store"
)

type HealthHandler struct {
	DB     *sql.DB
	Status status.Store
}

// pinger is implemented by status stores backed by a server.
type pinger interface {
	Ping(ctx context.Context) error
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	}
	if h.DB != nil {
		n, err := store.CountJobs(r.Context(), h.DB)
		if err != nil {
			resp["ok"] = false
			resp["db_error"] = err.Error()
		} else {
			resp["jobs"] = n
		}
	}
	if p, ok := h.Status.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp["status_store_error"] = err.Error()
		}
	}
	if h.Status != nil {
		if o, ok, err := h.Status.Latest(r.Context()); err == nil && ok {
			resp["last_run_id"] = o.RunID
		}
	}
	code := http.StatusOK
	if resp["ok"] == false {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}
