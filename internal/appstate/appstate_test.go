package appstate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"unicode/utf8"

	"expensetracker/internal/core"
	"expensetracker/internal/storage/memory"
)

func upload(name string) core.FileUpload {
	return core.FileUpload{Name: name, Type: "text/csv", Data: []byte("payload-" + name)}
}

func TestPendingQueue_CapAndOrder(t *testing.T) {
	ctx := context.Background()
	q := NewPendingQueue(memory.New(nil).State())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		p := NewPendingFile(upload(fmt.Sprintf("f%02d", i)), base.Add(time.Duration(i)*time.Minute))
		if err := q.Enqueue(ctx, p); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		n, err := q.Len(ctx)
		if err != nil {
			t.Fatalf("len: %v", err)
		}
		want := i + 1
		if want > core.MaxPendingFiles {
			want = core.MaxPendingFiles
		}
		if n != want {
			t.Fatalf("after %d enqueues expected %d items, got %d", i+1, want, n)
		}
	}

	listed, _ := q.List(ctx)
	if listed[0].Name != "f14" {
		t.Fatalf("expected newest first, got %s", listed[0].Name)
	}

	drained, err := q.DrainAll(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != core.MaxPendingFiles {
		t.Fatalf("expected %d drained, got %d", core.MaxPendingFiles, len(drained))
	}
	for i, p := range drained {
		want := fmt.Sprintf("f%02d", i+5)
		if p.Name != want {
			t.Fatalf("drained[%d] = %s, want %s", i, p.Name, want)
		}
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue after drain, got %d", n)
	}
	if again, _ := q.DrainAll(ctx); len(again) != 0 {
		t.Fatalf("expected nothing on second drain")
	}
}

func TestPendingQueue_PreservesBytes(t *testing.T) {
	ctx := context.Background()
	q := NewPendingQueue(memory.New(nil).State())
	data := []byte{0x00, 0xff, 0x10, 'a'}
	p := NewPendingFile(core.FileUpload{Name: "bin", Type: "application/octet-stream", Data: data}, time.Now())
	data[0] = 0x42 // caller mutation must not leak into the queue
	if err := q.Enqueue(ctx, p); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, _ := q.DrainAll(ctx)
	if len(got) != 1 || !bytes.Equal(got[0].Data, []byte{0x00, 0xff, 0x10, 'a'}) || got[0].Size != 4 {
		t.Fatalf("unexpected drained item %+v", got)
	}
	if got[0].ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestPendingQueue_Requeue(t *testing.T) {
	ctx := context.Background()
	q := NewPendingQueue(memory.New(nil).State())
	now := time.Now()
	for _, n := range []string{"a", "b", "c"} {
		_ = q.Enqueue(ctx, NewPendingFile(upload(n), now))
	}
	drained, _ := q.DrainAll(ctx)
	_ = q.Enqueue(ctx, NewPendingFile(upload("fresh"), now))
	if err := q.Requeue(ctx, drained[1:]); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	again, _ := q.DrainAll(ctx)
	var names []string
	for _, p := range again {
		names = append(names, p.Name)
	}
	if fmt.Sprint(names) != "[b c fresh]" {
		t.Fatalf("unexpected order after requeue: %v", names)
	}
}

func TestPendingQueue_CorruptStateReadsEmpty(t *testing.T) {
	ctx := context.Background()
	state := memory.New(nil).State()
	_ = state.Put(ctx, KeyPending, []byte("{not json"))
	q := NewPendingQueue(state)
	if n, err := q.Len(ctx); err != nil || n != 0 {
		t.Fatalf("expected empty queue, n=%d err=%v", n, err)
	}
	if err := q.Enqueue(ctx, NewPendingFile(upload("x"), time.Now())); err != nil {
		t.Fatalf("enqueue after corruption: %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("expected healed queue with 1 item, got %d", n)
	}
}

func TestHistoryStore_CapAndOrder(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(memory.New(nil).State())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		entries, err := h.Append(ctx, core.AnalysisEntry{
			FileName:   fmt.Sprintf("f%d", i),
			Summary:    "s",
			AnalyzedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if len(entries) > core.MaxHistoryEntries {
			t.Fatalf("history exceeded cap: %d", len(entries))
		}
	}
	list, err := h.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != core.MaxHistoryEntries {
		t.Fatalf("expected %d entries, got %d", core.MaxHistoryEntries, len(list))
	}
	for i := 1; i < len(list); i++ {
		if !list[i-1].AnalyzedAt.After(list[i].AnalyzedAt) {
			t.Fatalf("history not newest first at %d", i)
		}
	}
	if list[0].FileName != "f24" || list[len(list)-1].FileName != "f5" {
		t.Fatalf("unexpected bounds %s..%s", list[0].FileName, list[len(list)-1].FileName)
	}
}

func TestHistoryStore_CorruptStateReadsEmpty(t *testing.T) {
	ctx := context.Background()
	state := memory.New(nil).State()
	_ = state.Put(ctx, KeyHistory, []byte("[{]"))
	list, err := NewHistoryStore(state).List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty history, got %v err=%v", list, err)
	}
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	c := NewCredentialStore(memory.New(nil).State())

	if _, ok, err := c.Get(ctx); ok || err != nil {
		t.Fatalf("expected no credential, ok=%v err=%v", ok, err)
	}
	if err := c.Save(ctx, "   "); !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}
	if err := c.Save(ctx, "  sk-test  "); err != nil {
		t.Fatalf("save: %v", err)
	}
	key, ok, _ := c.Get(ctx)
	if !ok || key != "sk-test" {
		t.Fatalf("expected trimmed key, got %q ok=%v", key, ok)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected credential cleared")
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"abc":           "•••",
		"sk-1234567890": "••••••••7890",
		"äöü":           "•••",
		"sk-schlüssel€": "••••••••sel€",
	}
	for in, want := range cases {
		got := Mask(in)
		if got != want {
			t.Fatalf("Mask(%q) = %q, want %q", in, got, want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("Mask(%q) produced invalid UTF-8", in)
		}
	}
}
