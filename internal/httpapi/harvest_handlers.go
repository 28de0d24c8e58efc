package httpapi

import (
	"context"
	"net/http"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/status"
)

type HarvestHandler struct {
	Runner HarvestRunner
	Status status.Store
	Hub    *events.Hub
	Ctx    context.Context
	Log    *logger.Logger
}

type harvestStatus struct {
	Runner  types.HarvestStatus `json:"runner"`
	LastRun *domain.RunOutcome  `json:"last_run,omitempty"`
}

func (h HarvestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var resp harvestStatus
	if h.Runner != nil {
		resp.Runner = h.Runner.Status()
	}
	if h.Status != nil {
		o, ok, err := h.Status.Latest(r.Context())
		if err != nil {
			h.Log.Warn().Err(err).Msg("read latest run status")
		} else if ok {
			resp.LastRun = &o
		}
	}
	writeJSON(w, resp)
}

// Run starts a background harvest. ?fresh=true ignores resumable artifacts.
func (h HarvestHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Runner == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "no_runner", "harvesting is not configured")
		return
	}
	reqID := RequestIDFrom(r.Context())
	fresh := queryBool(r, "fresh")

	if !h.Runner.Start(h.Ctx, reqID, fresh) {
		WriteJSON(w, http.StatusConflict, map[string]any{"ok": false, "msg": "already running"})
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(reqID, events.TypeHarvestQueued, 1, map[string]any{"fresh": fresh}))
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "fresh": fresh})
}

// RunByPath serves GET /harvest/runs/{run_id} from the status store.
func (h HarvestHandler) RunByPath(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "/harvest/runs/")
	if id == "" || h.Status == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "run not found")
		return
	}
	o, ok, err := h.Status.Run(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "status_error", err.Error())
		return
	}
	if !ok {
		WriteError(w, r, http.StatusNotFound, "not_found", "run not found")
		return
	}
	writeJSON(w, o)
}
