package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee"
)

// AccessTokenParser verifies bearer tokens.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*auth.Claims, error)
}

// StatusRecorder counts responses by status code.
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Employees    *employee.Handler
	Tokens       AccessTokenParser
	LoginLimiter *LoginLimiter
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Status  StatusRecorder
	// Health reports backing store reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level and feeds status codes to rec.
// rec may be nil.
func LoggingMiddleware(logger *zap.SugaredLogger, rec StatusRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			if rec != nil {
				rec.RecordHTTPStatus(status)
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers. Responses are
// JSON only, so the CSP denies everything.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// token responses must never be cached
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerMiddleware verifies the access token and stores its claims in the
// request context. Missing or invalid tokens get 401.
func BearerMiddleware(parser AccessTokenParser, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w)
				return
			}
			claims, err := parser.ParseAccessToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debugw("access token rejected", "path", r.URL.Path, "err", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="employees"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
}

// RegisterRoutes mounts every endpoint on an http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	h := deps.Employees
	protect := BearerMiddleware(deps.Tokens, logger)
	throttle := func(next http.Handler) http.Handler { return next }
	if deps.LoginLimiter != nil {
		throttle = deps.LoginLimiter.Middleware(logger)
	}

	mux.Handle("POST /employees", throttle(http.HandlerFunc(h.Create)))
	mux.Handle("GET /employees/{id}", protect(http.HandlerFunc(h.Get)))
	mux.Handle("PATCH /employees/{id}", protect(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /employees/{id}", protect(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /employees/{id}/relations/{set}", protect(http.HandlerFunc(h.AddRelation)))
	mux.Handle("DELETE /employees/{id}/relations/{set}/{targetId}", protect(http.HandlerFunc(h.RemoveRelation)))
	mux.Handle("POST /employees/{id}/conversations/{peerId}/messages", protect(http.HandlerFunc(h.AppendMessage)))

	mux.Handle("POST /auth/login", throttle(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/refresh", throttle(http.HandlerFunc(h.Refresh)))
	mux.Handle("POST /auth/logout", protect(http.HandlerFunc(h.Logout)))

	return LoggingMiddleware(logger, deps.Status)(SecurityHeadersMiddleware()(mux))
}
