package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"

	"jobharvest-engine/internal/config"
)

const redacted = "********"

type ConfigHandler struct {
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

// Get never echoes the session cookie back.
func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, redact(h.CfgVal.Load().(config.Config)))
}

// Put validates and saves a full config. A redacted or empty cookie keeps
// the current one.
func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming config.Config
	if err := dec.Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if dec.More() {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: trailing data")
		return
	}

	cur := h.CfgVal.Load().(config.Config)
	if c := strings.TrimSpace(incoming.Feed.SessionCookie); c == "" || c == redacted {
		incoming.Feed.SessionCookie = cur.Feed.SessionCookie
	}

	normalized, vr := config.NormalizeAndValidate(incoming)
	if !vr.OK() {
		// Structured errors so the UI can show them per field
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, "save_failed", err.Error())
		return
	}

	saved, err := h.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	h.CfgVal.Store(saved)
	writeJSON(w, redact(saved))
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.UserCfgPath)
	writeJSON(w, map[string]any{"path": abs})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	cur := h.CfgVal.Load().(config.Config)
	_, vr := config.NormalizeAndValidate(cur)
	writeJSON(w, vr)
}

func redact(cfg config.Config) config.Config {
	if cfg.Feed.SessionCookie != "" {
		cfg.Feed.SessionCookie = redacted
	}
	return cfg
}
