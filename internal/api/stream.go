package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleTabEvents implements GET /v1/tabs/{tabId}/events: a server-sent
// event stream of every push message for the tab. The connection is the
// observer; while it is open, delivery pings for the tab succeed.
func (d *Dependencies) handleTabEvents(w http.ResponseWriter, r *http.Request) {
	if d.Hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "SSE delivery not enabled"})
		return
	}
	tabID, ok := tabIDParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tabId must be an integer"})
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})
	msgs, cancel := d.Hub.Subscribe(tabID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n") //nolint:errcheck
	if err := rc.Flush(); err != nil {
		d.Logger.Warn("sse flush unsupported", zap.Error(err))
		return
	}
	d.Logger.Debug("observer attached", zap.Int("tab_id", tabID))

	keepAlive := time.NewTicker(d.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			d.Logger.Debug("observer detached", zap.Int("tab_id", tabID))
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case msg, open := <-msgs:
			if !open {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				d.Logger.Error("encode push message", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
