package cache

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func frozen[T any](c *LRUCache[T]) *time.Time {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("2024-1", 1)
	c.Set("2024-2", 2)
	c.Get("2024-1")
	c.Set("2024-3", 3)

	if _, ok := c.Get("2024-2"); ok {
		t.Error("2024-2 should have been evicted")
	}
	if v, ok := c.Get("2024-1"); !ok || v != 1 {
		t.Errorf("2024-1 = %v %v", v, ok)
	}
	st := c.Stats()
	if st.Evictions != 1 || st.Entries != 2 || st.Hits != 2 || st.Misses != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := frozen(c)

	c.Set("k", "v")
	c.Set("other", "x")
	*now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_GetOrLoad(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	loads := 0
	load := func() (int, error) { loads++; return 42, nil }

	v, cached, err := c.GetOrLoad("2024", load)
	if err != nil || cached || v != 42 {
		t.Fatalf("first load: %v %v %v", v, cached, err)
	}
	v, cached, _ = c.GetOrLoad("2024", load)
	if !cached || v != 42 || loads != 1 {
		t.Fatalf("second call should hit: %v %v loads=%d", v, cached, loads)
	}

	boom := errors.New("store down")
	if _, _, err := c.GetOrLoad("2025", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, ok := c.Get("2025"); ok {
		t.Error("failed loads must not be cached")
	}
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	var c Cache[int] = NewLRUCache[int](10, time.Minute)
	c.Set("2024-1", 1)
	c.Set("2024-2", 2)

	c.Delete("2024-1")
	if _, ok := c.Get("2024-1"); ok || c.Size() != 1 {
		t.Fatalf("2024-1 should be gone, size %d", c.Size())
	}
	c.Set("x", 9)
	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set("y", 7)
	if v, ok := c.Get("y"); !ok || v != 7 {
		t.Error("cache unusable after purge")
	}
}

func TestManager(t *testing.T) {
	month := NewLRUCache[int](10, time.Second)
	now := frozen(month)
	month.Set("2024-1", 1)
	year := NewLRUCache[string](10, time.Hour)
	year.Set("2024", "x")

	m := NewManager()
	m.Register("year", year)
	m.Register("month", month)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	if got := strings.Join(m.Names(), ","); got != "month,year" {
		t.Errorf("Names() = %q", got)
	}
	*now = now.Add(time.Minute)
	if n := m.CleanAll(); n != 1 {
		t.Errorf("CleanAll() = %d, want 1", n)
	}
	st := m.Stats()
	if st["month"].Entries != 0 || st["year"].Entries != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	m.Stop()
}
