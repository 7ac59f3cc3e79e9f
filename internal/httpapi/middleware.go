package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDHeader names the header a request id is read from or stamped
// onto, matching the donor's own convention (internal/http/middleware).
const RequestIDHeader = "X-Request-ID"

// RequestID injects a request id into the context, reusing an inbound
// X-Request-ID header if present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id stamped by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Logging logs one line per completed request.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()),
				"duration", time.Since(start),
			)
		})
	}
}

// Recovery converts a panic in a downstream handler into a 500 response
// instead of crashing the server.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", "error", rec, "path", r.URL.Path)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfig holds CORS header values for the streaming endpoints, where
// Huma's own response pipeline cannot set headers ahead of a chunked body.
type CORSConfig struct {
	AllowOrigin   string
	AllowMethods  string
	AllowHeaders  string
	ExposeHeaders string
}

// DefaultCORSConfig mirrors the donor's streaming CORS defaults
// (internal/http/handlers/cors.go).
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:   "*",
		AllowMethods:  "GET, OPTIONS",
		AllowHeaders:  "Content-Type, Accept, Range",
		ExposeHeaders: "Content-Length, Content-Range",
	}
}

func setCORSHeaders(w http.ResponseWriter, cfg CORSConfig) {
	w.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", cfg.AllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", cfg.AllowHeaders)
	if cfg.ExposeHeaders != "" {
		w.Header().Set("Access-Control-Expose-Headers", cfg.ExposeHeaders)
	}
}
