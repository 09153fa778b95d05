package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/settings"
)

func (d *Dependencies) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Settings.Get())
}

// handlePutSettings replaces the settings wholesale.
func (d *Dependencies) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	if err := d.Settings.Put(r.Context(), req); err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		d.Logger.Error("failed to save settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to save settings"})
		return
	}

	if p := principalFromContext(r.Context()); p != nil {
		d.Logger.Info("settings replaced", zap.String("key_prefix", p.KeyPrefix))
	}
	writeJSON(w, http.StatusOK, d.Settings.Get())
}
