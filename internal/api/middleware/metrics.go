package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/REZ3X/ghostchat-backend/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses parameterized paths to avoid high cardinality.
func normalizePath(path string) string {
	patterns := []struct{ prefix, normalized string }{
		{"/api/room/", "/api/room/:token"},
		{"/api/image/", "/api/image/:filename"},
	}
	for _, p := range patterns {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) {
			if strings.HasSuffix(path, "/stats") {
				return p.normalized + "/stats"
			}
			if strings.HasSuffix(path, "/messages") {
				return p.normalized + "/messages"
			}
			return p.normalized
		}
	}
	return path
}
