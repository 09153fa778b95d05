// Package interaction holds the tracked request/response pairs and their
// analysis state.
package interaction

import (
	"net/http"
	"time"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

type AnalysisStatus string

const (
	AnalysisPartial  AnalysisStatus = "partial"
	AnalysisComplete AnalysisStatus = "complete"
)

// AnalysisScore is one dimension of an analysis. Score is always in [0,100].
type AnalysisScore struct {
	Score   float64 `json:"score"`
	Level   string  `json:"level"`
	Details string  `json:"details"`
}

// AnalysisResult aggregates the four dimensions. Safety stays nil until the
// response has been observed.
type AnalysisResult struct {
	Bias         AnalysisScore  `json:"biasScore"`
	Privacy      AnalysisScore  `json:"privacyScore"`
	Safety       *AnalysisScore `json:"safetyScore"`
	Transparency AnalysisScore  `json:"transparencyScore"`
	Status       AnalysisStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Clone returns a deep copy.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Safety != nil {
		s := *r.Safety
		out.Safety = &s
	}
	return &out
}

// RequestSnapshot is the outbound request as the ingest path observed it.
type RequestSnapshot struct {
	Method string `json:"method,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

// ResponseSnapshot is the completed response. Body is empty when the ingest
// path cannot read response bodies.
type ResponseSnapshot struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	ObservedAt time.Time   `json:"observedAt"`
}

// Interaction is one tracked request/response pair.
type Interaction struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"createdAt"`
	URL        string             `json:"url"`
	TabID      int                `json:"tabId"`
	Service    classifier.Service `json:"service"`
	RequestKey string             `json:"requestKey,omitempty"`
	Request    *RequestSnapshot   `json:"request,omitempty"`
	Response   *ResponseSnapshot  `json:"response,omitempty"`
	Status     Status             `json:"status"`
	Analysis   *AnalysisResult    `json:"analysis,omitempty"`

	seq uint64
}

// clone deep-copies everything a caller could mutate.
func (i *Interaction) clone() Interaction {
	out := *i
	if i.Request != nil {
		req := *i.Request
		req.Body = append([]byte(nil), i.Request.Body...)
		out.Request = &req
	}
	if i.Response != nil {
		resp := *i.Response
		resp.Body = append([]byte(nil), i.Response.Body...)
		resp.Headers = i.Response.Headers.Clone()
		out.Response = &resp
	}
	out.Analysis = i.Analysis.Clone()
	return out
}
