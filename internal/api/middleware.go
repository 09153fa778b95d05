package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/auth"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 8 << 20

type contextKey int

const principalCtxKey contextKey = iota

// principalFromContext returns the caller's verified key, or nil when auth is
// disabled.
func principalFromContext(ctx context.Context) *auth.Principal {
	v, _ := ctx.Value(principalCtxKey).(*auth.Principal)
	return v
}

// --- Auth middleware ---

// authMiddleware validates Bearer wdk_ tokens and injects the principal into
// the request context. It is a pass-through when no Verifier is configured.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if d.Verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.Verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		switch {
		case err == nil:
			next(w, r.WithContext(context.WithValue(r.Context(), principalCtxKey, p)))
		case errors.Is(err, auth.ErrMissingAPIKey):
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
		case errors.Is(err, auth.ErrAuthUnavailable):
			d.Logger.Warn("auth unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Authentication temporarily unavailable"})
		default:
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
		}
	}
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// tabIDParam parses the {tabId} path segment.
func tabIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("tabId"))
	if err != nil {
		return 0, false
	}
	return id, true
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
