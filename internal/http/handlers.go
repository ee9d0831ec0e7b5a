package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "expensetracker/internal/log"
)

var errTemplatesMissing = errors.New("templates not loaded")

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ready == nil:
		checks["storage"] = "ok"
	default:
		if err := s.ready(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	// Being offline is a supported mode, not a readiness failure.
	if s.conn != nil {
		checks["analysis_api"] = map[bool]string{true: "online", false: "offline"}[s.conn.Online()]
	}

	checks["cache"] = map[string]any{
		"month_entries": s.overviewCache.Size(),
		"year_entries":  s.yearCache.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	var pending, history int
	online := 0
	if s.analysis != nil {
		snap := s.analysis.Snapshot()
		pending, history = snap.PendingCount, len(snap.History)
		if snap.Online {
			online = 1
		}
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_request_duration_avg_seconds", "gauge", "Average request duration", traceMetrics.AverageResponseTime.Seconds())
	metric("expenses_created_total", "counter", "Expenses created through the web UI", atomic.LoadInt64(&s.appMetrics.totalExpenses))
	metric("analysis_uploads_total", "counter", "Files submitted for analysis", atomic.LoadInt64(&s.appMetrics.uploads))
	metric("analysis_pending_files", "gauge", "Files waiting in the offline queue", pending)
	metric("analysis_history_entries", "gauge", "Stored analysis results", history)
	metric("analysis_api_online", "gauge", "Whether the analysis API is reachable", online)

	var hits, misses int64
	cacheStats := s.cacheManager.Stats()
	for _, st := range cacheStats {
		hits += st.Hits
		misses += st.Misses
	}
	metric("cache_hits_total", "counter", "Total cache hits", hits)
	metric("cache_misses_total", "counter", "Total cache misses", misses)

	fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n# TYPE cache_entries gauge\n")
	for _, name := range s.cacheManager.Names() {
		fmt.Fprintf(w, "cache_entries{type=%q} %d\n", name, cacheStats[name].Entries)
	}
	fmt.Fprintf(w, "\n# HELP cache_evictions_total Entries evicted for capacity\n# TYPE cache_evictions_total counter\n")
	for _, name := range s.cacheManager.Names() {
		fmt.Fprintf(w, "cache_evictions_total{type=%q} %d\n", name, cacheStats[name].Evictions)
	}
	fmt.Fprintln(w)

	metric("rate_limit_rejected_writes_total", "counter", "Writes rejected by the rate limiter", rateLimitMetrics.RejectedWrites)
	metric("rate_limit_rejected_uploads_total", "counter", "Uploads rejected by the rate limiter", rateLimitMetrics.RejectedUploads)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	cats, err := s.expenses.Categories(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Category list error", "error", err)
	}
	today := s.expenses.Today()
	data := struct {
		Today      string
		Year       int
		Month      int
		Categories []string
	}{
		Today:      today.String(),
		Year:       today.Year(),
		Month:      today.Month(),
		Categories: cats,
	}

	s.render(w, r, "index.html", data)
}

// render executes a named template, answering 500 when rendering fails.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	body, err := s.execute(r.Context(), name, data)
	if err != nil {
		Fail(http.StatusInternalServerError, "Rendering failed").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

// execute renders into memory so a failed template never leaves a half
// written response.
func (s *Server) execute(ctx context.Context, name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesMissing
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(ctx, "Template execution failed",
			"error", err,
			"template", name,
			applog.FieldComponent, applog.ComponentTemplate,
			applog.FieldOperation, applog.OpRender)
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
