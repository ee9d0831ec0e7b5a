// Package connectivity tracks whether the remote analysis service is
// reachable and notifies subscribers when that changes.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Prober checks reachability once.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Monitor holds the process wide online flag.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	prober   Prober
	interval time.Duration
}

// NewMonitor returns a monitor starting in the given state. prober may be
// nil when the state is only ever set externally.
func NewMonitor(initial bool, prober Prober, interval time.Duration) *Monitor {
	return &Monitor{
		online:   initial,
		subs:     map[int]func(bool){},
		prober:   prober,
		interval: interval,
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transitions. The returned func removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Set records a new state. Subscribers run synchronously, outside the
// lock, and only when the state actually changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	slog.Info("Connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}

// Run probes until ctx is done. It probes once immediately.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil || m.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Set(m.prober.Probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(m.prober.Probe(ctx))
		}
	}
}

// HTTPProber treats any HTTP response from URL as reachable.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "Connectivity probe failed", "url", p.URL, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
