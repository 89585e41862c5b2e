package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/portfolio-guard/internal/auth"
	"github.com/triage-ai/portfolio-guard/internal/metrics"
	"github.com/triage-ai/portfolio-guard/internal/pipeline"
	"go.uber.org/zap"
)

const sessionCookie = "admin_session"

// --- Admin session middleware ---

// requireAdmin rejects requests without a live admin session cookie. Sessions
// past half their lifetime get a renewed cookie.
func (d *Dependencies) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Auth == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Admin access not configured"})
			return
		}

		var token string
		if c, err := r.Cookie(sessionCookie); err == nil {
			token = c.Value
		}

		res, err := d.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Admin access not configured"})
				return
			}
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Not authenticated"})
			return
		}

		if res.NeedsRenew {
			if s, ok := d.Auth.Renew(r.Context(), token); ok {
				d.setSessionCookie(w, token, s.ExpiresAt)
			}
		}
		next(w, r)
	}
}

func (d *Dependencies) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/api/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   d.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (d *Dependencies) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/api/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   d.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

const maxAdminBodyBytes = 256 << 10

// readJSON decodes a JSON request body into the given pointer.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBodyBytes)
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Request ID ---

// requestID propagates a valid inbound X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(pipeline.ContextWithRequestID(r.Context(), id)))
	})
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)
		m.ObserveHTTP(r.Method, sw.status, elapsed)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", pipeline.RequestIDFromContext(r.Context())),
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

// Unwrap lets http.ResponseController reach the underlying writer to flush
// streamed completions.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// --- CORS ---

func corsMiddleware(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if origin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
