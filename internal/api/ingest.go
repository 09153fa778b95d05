package api

import (
	"net/http"

	"github.com/sumitx99/ethical-web-watchdog/internal/lifecycle"
)

// handleRequestObserved implements POST /v1/webrequest/before.
// Untracked requests are not an error: the response reports tracked=false.
func (d *Dependencies) handleRequestObserved(w http.ResponseWriter, r *http.Request) {
	var req RequestObservedReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "url is required"})
		return
	}

	id, tracked := d.Controller.HandleRequest(lifecycle.RequestEvent{
		RequestID: req.RequestID,
		URL:       req.URL,
		TabID:     req.TabID,
		Method:    req.Method,
		Body:      req.RequestBody,
	})
	status := http.StatusOK
	if tracked {
		status = http.StatusAccepted
	}
	writeJSON(w, status, RequestObservedResp{Tracked: tracked, InteractionID: id})
}

// handleResponseObserved implements POST /v1/webrequest/completed.
func (d *Dependencies) handleResponseObserved(w http.ResponseWriter, r *http.Request) {
	var req ResponseObservedReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "url is required"})
		return
	}

	var body []byte
	if req.Body != "" {
		body = []byte(req.Body)
	}
	completed := d.Controller.HandleResponse(lifecycle.ResponseEvent{
		RequestID:  req.RequestID,
		URL:        req.URL,
		TabID:      req.TabID,
		StatusCode: req.StatusCode,
		Headers:    req.headers(),
		Body:       body,
	})
	writeJSON(w, http.StatusOK, ResponseObservedResp{Completed: completed})
}
