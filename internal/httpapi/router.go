package httpapi

import (
	"context"
	"net/http"

	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/secrets"
)

// NewMux returns the raw mux so main() can wrap it with middleware.
func NewMux(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	if d.SetSession == nil {
		d.SetSession = secrets.SetSessionCookie
	}
	if d.ClearSession == nil {
		d.ClearSession = secrets.DeleteSessionCookie
	}

	mux := http.NewServeMux()

	hh := HealthHandler{DB: d.DB, Status: d.Status}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Jobs
	jh := JobsHandler{DB: d.DB, Hub: d.Hub}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))
	mux.HandleFunc("/jobs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:    jh.GetByPath,    // /jobs/{id}
		http.MethodDelete: jh.DeleteByPath, // /jobs/{id}
	}))

	// Harvest
	hv := HarvestHandler{Runner: d.Harvest, Status: d.Status, Hub: d.Hub, Ctx: d.BaseCtx, Log: d.Log}
	mux.HandleFunc("/harvest/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hv.GetStatus,
	}))
	mux.HandleFunc("/harvest/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: hv.Run,
	}))
	mux.HandleFunc("/harvest/runs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hv.RunByPath, // /harvest/runs/{run_id}
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal, Set: d.SetSession, Clear: d.ClearSession}
	mux.HandleFunc("/api/secrets/session", methodMux(map[string]http.HandlerFunc{
		http.MethodPost:   sh.SetSession,
		http.MethodDelete: sh.ClearSession,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	// Maintenance
	dh := DBHandler{DB: d.DB}
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dh.Checkpoint,
	}))

	return mux
}
