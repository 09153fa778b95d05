package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/chread"
)

// handleListHistory implements GET /v1/history.
func (d *Dependencies) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListAnalysesParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", chread.DefaultPageSize),
	}
	if v := q.Get("service"); v != "" {
		params.Service = &v
	}
	if v := q.Get("stage"); v != "" {
		params.Stage = &v
	}
	if v := q.Get("rating"); v != "" {
		params.Rating = &v
	}
	if v := q.Get("interaction_id"); v != "" {
		params.InteractionID = &v
	}
	if v := q.Get("tab_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tab_id must be an integer"})
			return
		}
		tab := int32(id)
		params.TabID = &tab
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}
	params.Normalize()

	rows, total, err := d.Reader.ListAnalyses(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list history"})
		return
	}
	writeJSON(w, http.StatusOK, HistoryListResp{
		Analyses: rows,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// handleHistorySummary implements GET /v1/history/summary.
func (d *Dependencies) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	services, err := d.Reader.SummarizeServices(r.Context(), since)
	if err != nil {
		d.Logger.Error("failed to summarize history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to summarize history"})
		return
	}
	writeJSON(w, http.StatusOK, HistorySummaryResp{Days: days, Services: services})
}
