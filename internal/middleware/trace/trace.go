// Package trace tags each request with an ID, echoes it in X-Request-ID
// and logs the request's outcome.
package trace

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	applog "expensetracker/internal/log"

	"github.com/google/uuid"
)

type requestIDKey struct{}

const headerRequestID = "X-Request-ID"

// Middleware assigns request IDs and keeps request counters.
type Middleware struct {
	extractIP func(*http.Request) string
	events    *applog.StructuredLogger

	requests atomic.Int64
	micros   atomic.Int64
}

type Metrics struct {
	TotalRequests       int64
	AverageResponseTime time.Duration
}

func NewMiddleware(logger *applog.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		events:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentTrace)),
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var clientIP string
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		id := NewRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)
		w.Header().Set(headerRequestID, id)
		m.events.LogHTTPStart(ctx, r, clientIP)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		m.requests.Add(1)
		m.micros.Add(elapsed.Microseconds())
		m.events.LogHTTPEnd(ctx, r, sw.status, elapsed.Milliseconds(), clientIP)
	})
}

func (m *Middleware) GetMetrics() Metrics {
	n := m.requests.Load()
	if n == 0 {
		return Metrics{}
	}
	return Metrics{
		TotalRequests:       n,
		AverageResponseTime: time.Duration(m.micros.Load()/n) * time.Microsecond,
	}
}

// statusWriter records the status code. It forwards Flush so the SSE
// handler can stream through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// NewRequestID returns "req_" followed by 16 hex characters.
func NewRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// RequestIDFromContext returns the ID set by Middleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggerMiddleware stores a request logger carrying request_id. It must
// run inside Middleware.
func LoggerMiddleware(logger *applog.Logger) func(http.Handler) http.Handler {
	return applog.Middleware(logger, func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	})
}
