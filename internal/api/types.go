package api

import (
	"encoding/json"
	"net/http"

	"github.com/sumitx99/ethical-web-watchdog/internal/chread"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

// --- Ingest ---

// RequestObservedReq mirrors a webRequest onBeforeRequest callback.
// RequestBody is passed through as raw JSON: a string, a JSON document, or
// the browser's {raw:[{bytes}]} / {formData} object.
type RequestObservedReq struct {
	RequestID   string          `json:"requestId"`
	URL         string          `json:"url"`
	TabID       int             `json:"tabId"`
	Method      string          `json:"method"`
	RequestBody json.RawMessage `json:"requestBody,omitempty"`
}

type RequestObservedResp struct {
	Tracked       bool   `json:"tracked"`
	InteractionID string `json:"interactionId,omitempty"`
}

// HeaderReq is one entry of the browser's responseHeaders array.
type HeaderReq struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ResponseObservedReq mirrors a webRequest onCompleted callback, plus the
// response body when the caller was able to read it.
type ResponseObservedReq struct {
	RequestID       string      `json:"requestId"`
	URL             string      `json:"url"`
	TabID           int         `json:"tabId"`
	StatusCode      int         `json:"statusCode"`
	ResponseHeaders []HeaderReq `json:"responseHeaders,omitempty"`
	Body            string      `json:"body,omitempty"`
}

func (r ResponseObservedReq) headers() http.Header {
	if len(r.ResponseHeaders) == 0 {
		return nil
	}
	h := make(http.Header, len(r.ResponseHeaders))
	for _, kv := range r.ResponseHeaders {
		h.Add(kv.Name, kv.Value)
	}
	return h
}

type ResponseObservedResp struct {
	Completed bool `json:"completed"`
}

// --- Query ---

type InteractionListResp struct {
	Interactions []interaction.Interaction `json:"interactions"`
}

// AnalysisResp carries the current analysis with its overall score and
// rating. Result is null for unknown ids.
type AnalysisResp struct {
	Result  *interaction.AnalysisResult `json:"result"`
	Overall *float64                    `json:"overall,omitempty"`
	Rating  string                      `json:"rating,omitempty"`
}

// --- Observers ---

type RegisterObserverReq struct {
	Addr string `json:"addr"`
}

type ObserverResp struct {
	TabID int    `json:"tabId"`
	Addr  string `json:"addr,omitempty"`
}

// --- History ---

type HistoryListResp struct {
	Analyses []chread.AnalysisRow `json:"analyses"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

type HistorySummaryResp struct {
	Days     int                     `json:"days"`
	Services []chread.ServiceSummary `json:"services"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
