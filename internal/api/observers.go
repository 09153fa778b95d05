package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleRegisterObserver implements POST /v1/tabs/{tabId}/observer.
func (d *Dependencies) handleRegisterObserver(w http.ResponseWriter, r *http.Request) {
	if d.Observers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "gRPC delivery not enabled"})
		return
	}
	tabID, ok := tabIDParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tabId must be an integer"})
		return
	}
	var req RegisterObserverReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Addr == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "addr is required"})
		return
	}

	if err := d.Observers.Register(tabID, req.Addr); err != nil {
		d.Logger.Warn("observer registration failed", zap.Int("tab_id", tabID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid observer address"})
		return
	}
	writeJSON(w, http.StatusCreated, ObserverResp{TabID: tabID, Addr: req.Addr})
}

// handleUnregisterObserver implements DELETE /v1/tabs/{tabId}/observer.
func (d *Dependencies) handleUnregisterObserver(w http.ResponseWriter, r *http.Request) {
	if d.Observers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "gRPC delivery not enabled"})
		return
	}
	tabID, ok := tabIDParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tabId must be an integer"})
		return
	}
	if !d.Observers.Unregister(tabID) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No observer registered for tab."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
