package metrics

import (
	"net/http"
	"strings"
	"time"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMiddleware returns middleware that records HTTP metrics. Requests
// are labelled by the matched route pattern so job IDs in paths do not
// create new series.
func HTTPMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			reg.RecordRequest(r.Method, routeLabel(r), rw.statusCode, duration)
		})
	}
}

// routeLabel returns the mux pattern without its method prefix.
func routeLabel(r *http.Request) string {
	p := r.Pattern
	if p == "" {
		return unmatchedRoute
	}
	if i := strings.IndexByte(p, ' '); i >= 0 {
		p = strings.TrimSpace(p[i+1:])
	}
	return p
}
