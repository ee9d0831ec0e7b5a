// Package cache holds the in-process caches for computed overviews.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Cache is the part of LRUCache the server depends on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	GetOrLoad(key string, load func() (T, error)) (T, bool, error)
	Delete(key string)
	Purge()
	Size() int
}

// Tracked is a cache the Manager can sweep and report on.
type Tracked interface {
	CleanExpired() int
	Stats() Stats
}

// Manager sweeps expired entries from named caches on an interval.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Tracked

	stop chan struct{}
	done chan struct{}
}

func NewManager() *Manager {
	return &Manager{caches: make(map[string]Tracked)}
}

// Register adds c under name, replacing any cache already there.
func (m *Manager) Register(name string, c Tracked) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Names returns the registered cache names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.caches))
	for n := range m.caches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stats reports every registered cache by name.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.caches))
	for n, c := range m.caches {
		out[n] = c.Stats()
	}
	return out
}

// CleanAll removes expired entries from every registered cache.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// StartCleanup runs CleanAll every interval until Stop.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.CleanAll(); n > 0 {
					slog.Debug("Cache cleanup completed", "entries_removed", n)
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop started by StartCleanup. Calling it again, or
// without StartCleanup, does nothing.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}
