package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestMonitor_NotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(false, nil, 0)
	var mu sync.Mutex
	var got []bool
	cancel := m.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	m.Set(false) // no change
	m.Set(true)
	m.Set(true) // no change
	m.Set(false)
	cancel()
	m.Set(true) // unsubscribed

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("unexpected notifications %v", got)
	}
	if !m.Online() {
		t.Fatalf("expected final state online")
	}
}

func TestMonitor_SubscriberMayReadState(t *testing.T) {
	m := NewMonitor(false, nil, 0)
	seen := make(chan bool, 1)
	m.Subscribe(func(bool) { seen <- m.Online() })
	m.Set(true)
	if !<-seen {
		t.Fatalf("expected subscriber to observe the new state")
	}
}

type stubProber struct {
	mu      sync.Mutex
	results []bool
}

func (s *stubProber) Probe(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return true
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func TestMonitor_RunProbes(t *testing.T) {
	m := NewMonitor(false, &stubProber{results: []bool{true}}, 5*time.Millisecond)
	changed := make(chan bool, 4)
	m.Subscribe(func(online bool) { changed <- online })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case v := <-changed:
		if !v {
			t.Fatalf("expected online transition")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for probe")
	}
	cancel()
	<-done
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusUnauthorized) // any response counts
	}))
	p := NewHTTPProber(srv.URL, time.Second)
	if !p.Probe(context.Background()) {
		t.Fatalf("expected reachable")
	}
	srv.Close()
	if p.Probe(context.Background()) {
		t.Fatalf("expected unreachable after close")
	}
}
