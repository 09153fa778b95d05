// Package api exposes the watchdog over HTTP: ingest of observed browser
// traffic, the pull query interface, per-tab push streams, settings and
// persisted history.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/auth"
	"github.com/sumitx99/ethical-web-watchdog/internal/chread"
	"github.com/sumitx99/ethical-web-watchdog/internal/delivery"
	"github.com/sumitx99/ethical-web-watchdog/internal/lifecycle"
	"github.com/sumitx99/ethical-web-watchdog/internal/query"
	"github.com/sumitx99/ethical-web-watchdog/internal/settings"
)

// ObserverRegistry manages gRPC observer endpoints per tab.
type ObserverRegistry interface {
	Register(tabID int, addr string) error
	Unregister(tabID int) bool
}

// HistoryReader reads persisted analysis events.
type HistoryReader interface {
	ListAnalyses(ctx context.Context, params chread.ListAnalysesParams) ([]chread.AnalysisRow, int, error)
	SummarizeServices(ctx context.Context, since time.Time) ([]chread.ServiceSummary, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Controller *lifecycle.Controller
	Query      *query.Service
	Dispatcher *query.Dispatcher
	Hub        *delivery.Hub    // nil if SSE delivery is disabled
	Observers  ObserverRegistry // nil if gRPC delivery is disabled
	Settings   *settings.Cache
	Reader     HistoryReader  // nil if ClickHouse unavailable
	Verifier   *auth.Verifier // nil disables API-key auth
	Logger     *zap.Logger

	// KeepAlive is the SSE comment interval. Default: 15s.
	KeepAlive time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 15 * time.Second
	}
	mux := http.NewServeMux()

	// Ingest from the browser
	mux.HandleFunc("POST /v1/webrequest/before", deps.authMiddleware(deps.handleRequestObserved))
	mux.HandleFunc("POST /v1/webrequest/completed", deps.authMiddleware(deps.handleResponseObserved))

	// Pull queries
	mux.HandleFunc("POST /v1/messages", deps.authMiddleware(deps.handleMessage))
	mux.HandleFunc("GET /v1/interactions", deps.authMiddleware(deps.handleListInteractions))
	mux.HandleFunc("GET /v1/interactions/{id}/analysis", deps.authMiddleware(deps.handleGetAnalysis))

	// Push observers
	mux.HandleFunc("GET /v1/tabs/{tabId}/events", deps.authMiddleware(deps.handleTabEvents))
	mux.HandleFunc("POST /v1/tabs/{tabId}/observer", deps.authMiddleware(deps.handleRegisterObserver))
	mux.HandleFunc("DELETE /v1/tabs/{tabId}/observer", deps.authMiddleware(deps.handleUnregisterObserver))

	// Settings
	mux.HandleFunc("GET /v1/settings", deps.authMiddleware(deps.handleGetSettings))
	mux.HandleFunc("PUT /v1/settings", deps.authMiddleware(deps.handlePutSettings))

	// History
	mux.HandleFunc("GET /v1/history", deps.authMiddleware(deps.handleListHistory))
	mux.HandleFunc("GET /v1/history/summary", deps.authMiddleware(deps.handleHistorySummary))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
