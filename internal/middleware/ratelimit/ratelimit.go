// Package ratelimit caps state-changing requests per client. Reads are
// never limited; file uploads get a tighter budget of their own because
// each one can turn into a paid remote analysis.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Class names a budget.
type Class string

const (
	ClassWrite  Class = "write"
	ClassUpload Class = "upload"
)

// Config holds the per-client budgets. A budget applies to one fixed
// window; uploads count against both budgets.
type Config struct {
	WritesPerWindow  int
	UploadsPerWindow int
	Window           time.Duration
	// UploadPaths are request paths whose writes are uploads.
	UploadPaths     []string
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		WritesPerWindow:  60,
		UploadsPerWindow: 20,
		Window:           time.Minute,
		UploadPaths:      []string{"/analysis"},
		CleanupInterval:  5 * time.Minute,
	}
}

type window struct {
	start time.Time
	count int
}

type bucketKey struct {
	class  Class
	client string
}

// Limiter counts requests per client and class in fixed windows.
type Limiter struct {
	cfg     Config
	uploads map[string]bool
	now     func() time.Time

	mu      sync.Mutex
	windows map[bucketKey]*window

	rejectedWrites  int64
	rejectedUploads int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter and its cleanup loop. Zero fields in cfg
// take their DefaultConfig value.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.WritesPerWindow <= 0 {
		cfg.WritesPerWindow = def.WritesPerWindow
	}
	if cfg.UploadsPerWindow <= 0 {
		cfg.UploadsPerWindow = def.UploadsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		cfg:     cfg,
		uploads: make(map[string]bool, len(cfg.UploadPaths)),
		now:     time.Now,
		windows: make(map[bucketKey]*window),
		stop:    make(chan struct{}),
	}
	for _, p := range cfg.UploadPaths {
		l.uploads[p] = true
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) budget(c Class) int {
	if c == ClassUpload {
		return l.cfg.UploadsPerWindow
	}
	return l.cfg.WritesPerWindow
}

// Allow records one request of class c from client. When the budget is
// spent it reports false and how long until the window resets.
func (l *Limiter) Allow(c Class, client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := bucketKey{c, client}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count >= l.budget(c) {
		if c == ClassUpload {
			atomic.AddInt64(&l.rejectedUploads, 1)
		} else {
			atomic.AddInt64(&l.rejectedWrites, 1)
		}
		return false, w.start.Add(l.cfg.Window).Sub(now)
	}
	w.count++
	return true, 0
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops windows that have already expired.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, k)
		}
	}
}

// ActiveClients counts distinct clients with an open window.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{}, len(l.windows))
	for k := range l.windows {
		seen[k.client] = struct{}{}
	}
	return len(seen)
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

type Metrics struct {
	RejectedWrites  int64
	RejectedUploads int64
	ClientCount     int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		RejectedWrites:  atomic.LoadInt64(&l.rejectedWrites),
		RejectedUploads: atomic.LoadInt64(&l.rejectedUploads),
		ClientCount:     int64(l.ActiveClients()),
	}
}

// Middleware limits POST, PUT, PATCH and DELETE requests. A nil onLimit
// answers 429 with Retry-After.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			client := extractIP(r)
			ok, wait := l.Allow(ClassWrite, client)
			if ok && l.uploads[r.URL.Path] {
				ok, wait = l.Allow(ClassUpload, client)
			}
			if !ok {
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
