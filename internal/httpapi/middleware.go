package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging logs ops requests. Probes and scrapes that succeed go to debug.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if isProbe(r.URL.Path) && sw.status < http.StatusBadRequest {
			level = slog.LevelDebug
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"component", "worker-ops",
			"status", sw.status,
			"duration", time.Since(start),
		}
		if id, ok := strings.CutPrefix(r.URL.Path, jobsPrefix); ok && id != "" {
			attrs = append(attrs, "job_id", id)
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

func isProbe(path string) bool {
	return path == "/metrics" || path == "/healthz" || path == "/readyz"
}
