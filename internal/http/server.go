package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
	appweb "expensetracker/web"
)

const (
	overviewCacheSize = 100
	overviewCacheTTL  = 5 * time.Minute
	cacheCleanupEvery = 10 * time.Minute
)

// ConnectivityControl reports and overrides the reachability state.
type ConnectivityControl interface {
	Online() bool
	Set(online bool)
}

// Deps are the collaborators the server renders and mutates.
type Deps struct {
	Expenses     *services.ExpenseService
	Analysis     *services.AnalysisService
	Connectivity ConnectivityControl
	// Ready checks the storage backend; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger
	// Templates overrides the embedded templates, mostly for tests.
	Templates fs.FS
}

type appMetrics struct {
	totalExpenses int64
	uploads       int64
	uptime        time.Time
}

type Server struct {
	http.Server
	templates *template.Template

	expenses *services.ExpenseService
	analysis *services.AnalysisService
	conn     ConnectivityControl
	ready    func(ctx context.Context) error

	logger *applog.Logger
	events *applog.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	overviewCache *cache.LRUCache[core.MonthOverview]
	yearCache     *cache.LRUCache[core.YearOverview]
	cacheManager  *cache.Manager

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server:           http.Server{Addr: addr},
		expenses:         deps.Expenses,
		analysis:         deps.Analysis,
		conn:             deps.Connectivity,
		ready:            deps.Ready,
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(),
		overviewCache:    cache.NewLRUCache[core.MonthOverview](overviewCacheSize, overviewCacheTTL),
		yearCache:        cache.NewLRUCache[core.YearOverview](overviewCacheSize/4, overviewCacheTTL),
		cacheManager:     cache.NewManager(),
		appMetrics:       appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.cacheManager.Register("month", s.overviewCache)
	s.cacheManager.Register("year", s.yearCache)
	s.cacheManager.StartCleanup(cacheCleanupEvery)

	tfs := deps.Templates
	if tfs == nil {
		tfs = appweb.TemplatesFS
	}
	t, err := template.New("").Funcs(templateFuncs).ParseFS(tfs, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err, applog.FieldComponent, applog.ComponentTemplate)
		t = nil
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.CacheStatic(time.Hour)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Expenses
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /expenses.csv", s.handleExportCSV)

	// UI partials
	mux.HandleFunc("GET /ui/expenses", s.handleExpenseList)
	mux.HandleFunc("GET /ui/month-overview", s.handleMonthOverview)
	mux.HandleFunc("GET /ui/year-overview", s.handleYearOverview)
	mux.HandleFunc("GET /ui/analysis", s.handleAnalysisPanel)

	// Analysis
	mux.HandleFunc("POST /analysis", s.handleAnalyze)
	mux.HandleFunc("POST /analysis/drain", s.handleDrain)
	mux.HandleFunc("POST /analysis/dismiss-error", s.handleDismissError)
	mux.HandleFunc("POST /api-key", s.handleSaveAPIKey)
	mux.HandleFunc("POST /api-key/clear", s.handleClearAPIKey)
	mux.HandleFunc("POST /connectivity", s.handleConnectivity)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, nil)(h)
	h = s.securityDetector.Middleware(h)
	h = security.Headers(security.DefaultPolicy())(h)
	h = trace.LoggerMiddleware(logger)(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func monthKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// invalidate drops cached aggregates touched by an expense on d.
func (s *Server) invalidate(d core.Date) {
	s.overviewCache.Delete(monthKey(d.Year(), d.Month()))
	s.yearCache.Delete(strconv.Itoa(d.Year()))
}

// invalidateAll is used when the affected date is unknown.
func (s *Server) invalidateAll() {
	s.overviewCache.Purge()
	s.yearCache.Purge()
}
