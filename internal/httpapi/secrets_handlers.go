package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
	Set    func(account, cookie string) error
	Clear  func(account string) error
}

type setSessionReq struct {
	Cookie string `json:"cookie"`
}

// SetSession stores the feed session cookie in the OS keychain. It takes
// effect on the next harvest.
func (h SecretsHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req setSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	if err := h.Set(secrets.SessionAccount(cfg), req.Cookie); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring_error", "failed to store session cookie: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	cfg := h.CfgVal.Load().(config.Config)
	if err := h.Clear(secrets.SessionAccount(cfg)); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
