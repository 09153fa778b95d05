package api

import (
	"io"
	"net/http"

	"github.com/sumitx99/ethical-web-watchdog/internal/scoring"
)

// handleMessage implements POST /v1/messages: the inbound dispatch table.
// Errors in the message itself are reported in the body with status 200.
func (d *Dependencies) handleMessage(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Request body too large"})
		return
	}
	writeJSON(w, http.StatusOK, d.Dispatcher.Dispatch(raw))
}

// handleListInteractions implements GET /v1/interactions.
func (d *Dependencies) handleListInteractions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InteractionListResp{Interactions: d.Query.ListInteractions()})
}

// handleGetAnalysis implements GET /v1/interactions/{id}/analysis.
func (d *Dependencies) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, ok := d.Query.GetAnalysis(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusOK, AnalysisResp{})
		return
	}
	overall := scoring.Overall(*result)
	writeJSON(w, http.StatusOK, AnalysisResp{
		Result:  result,
		Overall: &overall,
		Rating:  scoring.Rating(overall),
	})
}
