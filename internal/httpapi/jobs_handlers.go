package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/store"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

type JobsHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

type jobsPage struct {
	Jobs   []store.Job `json:"jobs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Query  string      `json:"query,omitempty"`
}

// List serves GET /jobs?q=&limit=&offset=. q is matched term by term
// against the searchable text.
func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultJobsLimit)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxJobsLimit {
		limit = maxJobsLimit
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_offset", "offset must be a non-negative integer")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	jobs, err := store.ListJobs(r.Context(), h.DB, store.ListJobsOpts{Query: q, Limit: limit, Offset: offset})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	total, err := store.CountJobs(r.Context(), h.DB)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, jobsPage{Jobs: jobs, Total: total, Limit: limit, Offset: offset, Query: q})
}

// GetByPath serves GET /jobs/{id}. The id may also be the visual id.
func (h JobsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "/jobs/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "invalid id")
		return
	}
	job, err := store.GetJob(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrNoJob) {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, job)
}

func (h JobsHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "/jobs/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "invalid id")
		return
	}

	err := store.DeleteJob(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrNoJob) {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), "job_deleted", 1, map[string]any{"id": id}))
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}
