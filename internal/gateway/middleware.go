package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/monitoring"
	"github.com/verimed/scribe-verify/pkg/types"
)

type contextKey string

const contextKeyUser contextKey = "user"

// UserFromContext returns the authenticated user claims, if present.
func UserFromContext(ctx context.Context) (*types.UserClaims, bool) {
	claims, ok := ctx.Value(contextKeyUser).(*types.UserClaims)
	return claims, ok
}

// RequestIDFromContext returns the request ID assigned by the middleware.
// The ID lives under the logger package's context key so that
// logger.WithContext sees the same value.
func RequestIDFromContext(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// Middleware bundles the HTTP middleware for the verification API
type Middleware struct {
	validator   *TokenValidator
	logger      *logger.Logger
	service     string
	exemptPaths map[string]bool
}

// NewMiddleware creates the middleware bundle. exemptPaths lists the
// request paths Auth admits without a token, typically the health and
// metrics endpoints wherever the deployment mounts them.
func NewMiddleware(validator *TokenValidator, log *logger.Logger, service string, exemptPaths ...string) *Middleware {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, path := range exemptPaths {
		exempt[path] = true
	}
	return &Middleware{
		validator:   validator,
		logger:      log,
		service:     service,
		exemptPaths: exempt,
	}
}

// RequestID assigns a request ID to every request
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs requests and records HTTP metrics
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		m.logger.HTTPRequest(r.Context(), r.Method, r.URL.Path, r.UserAgent(), r.RemoteAddr,
			recorder.statusCode, duration.Milliseconds(), nil)
		monitoring.RecordHTTPRequest(m.service, r.Method, r.URL.Path, recorder.statusCode, duration)
	})
}

// Auth validates JWT bearer tokens and injects user claims
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Exempt endpoints (health, metrics) stay unauthenticated
		if m.exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeAuthError(w, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.writeAuthError(w, "Authorization header must be a Bearer token")
			return
		}

		claims, err := m.validator.ValidateJWT(parts[1])
		if err != nil {
			m.logger.Security("invalid_token", "", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			m.writeAuthError(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUser, claims)
		ctx = logger.ContextWithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders adds security headers
func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// responseRecorder captures the response status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
