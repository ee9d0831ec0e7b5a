package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/appstate"
	"expensetracker/internal/core"
)

// SubmitStatus is where a submitted file ended up.
type SubmitStatus int

const (
	StatusAnalyzed SubmitStatus = iota + 1
	StatusFailed
	StatusQueuedNeedsCredential
	StatusQueuedOffline
	StatusRejectedOversize
)

func (s SubmitStatus) String() string {
	switch s {
	case StatusAnalyzed:
		return "analyzed"
	case StatusFailed:
		return "failed"
	case StatusQueuedNeedsCredential:
		return "queued_needs_credential"
	case StatusQueuedOffline:
		return "queued_offline"
	case StatusRejectedOversize:
		return "rejected_oversize"
	default:
		return "unknown"
	}
}

// Queued reports whether the file was kept for later.
func (s SubmitStatus) Queued() bool {
	return s == StatusQueuedNeedsCredential || s == StatusQueuedOffline
}

// Outcome reports what happened to one submitted file.
type Outcome struct {
	FileName string
	Status   SubmitStatus
	Entry    *core.AnalysisEntry // set when analyzed
	Err      error
}

// Message is the user facing status line for the outcome.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusAnalyzed:
		return o.FileName + ": analysis complete."
	case StatusQueuedNeedsCredential:
		return o.FileName + ": saved. It will be analyzed once an API key is entered."
	case StatusQueuedOffline:
		return o.FileName + ": saved offline. It will be analyzed when the connection returns."
	case StatusRejectedOversize:
		return o.FileName + ": " + o.Err.Error() + "."
	default:
		msg := genericAnalysisFailure
		if o.Err != nil && o.Err.Error() != "" {
			msg = o.Err.Error()
		}
		return o.FileName + ": error: " + msg
	}
}

// Level grades the outcome for display: success, info, warning or error.
func (o Outcome) Level() string {
	switch o.Status {
	case StatusAnalyzed:
		return "success"
	case StatusQueuedNeedsCredential:
		return "warning"
	case StatusQueuedOffline:
		return "info"
	default:
		return "error"
	}
}

// PendingItem describes a queued file without its payload.
type PendingItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Snapshot is an immutable view of the analysis state.
type Snapshot struct {
	APIKeySet    bool                 `json:"apiKeySet"`
	MaskedKey    string               `json:"maskedKey,omitempty"`
	Online       bool                 `json:"online"`
	Analyzing    bool                 `json:"analyzing"`
	LastError    string               `json:"lastError,omitempty"`
	History      []core.AnalysisEntry `json:"history"`
	Pending      []PendingItem        `json:"pending"`
	PendingCount int                  `json:"pendingCount"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Snapshot returns the latest published state.
func (s *AnalysisService) Snapshot() Snapshot {
	return s.snapshots.latest()
}

// Subscribe returns a channel that always holds the most recent snapshot;
// slow readers skip intermediate ones. cancel closes the channel.
func (s *AnalysisService) Subscribe() (<-chan Snapshot, func()) {
	return s.snapshots.subscribe()
}

// Refresh recomputes and publishes the snapshot, returning it.
func (s *AnalysisService) Refresh(ctx context.Context) Snapshot {
	s.refresh(ctx)
	return s.Snapshot()
}

// refresh rebuilds the snapshot from every source and publishes it. Store
// read failures keep the previous values for that source.
func (s *AnalysisService) refresh(ctx context.Context) {
	s.snapshots.build.Lock()
	defer s.snapshots.build.Unlock()

	prev := s.snapshots.latest()
	next := Snapshot{
		Online:    s.conn.Online(),
		History:   prev.History,
		Pending:   prev.Pending,
		UpdatedAt: s.now(),
	}

	if key, ok, err := s.creds.Get(ctx); err != nil {
		slog.WarnContext(ctx, "Snapshot: credential unavailable", "error", err)
		next.APIKeySet, next.MaskedKey = prev.APIKeySet, prev.MaskedKey
	} else if ok {
		next.APIKeySet = true
		next.MaskedKey = appstate.Mask(key)
	}

	if history, err := s.history.List(ctx); err != nil {
		slog.WarnContext(ctx, "Snapshot: history unavailable", "error", err)
	} else {
		next.History = history
	}

	if queued, err := s.queue.List(ctx); err != nil {
		slog.WarnContext(ctx, "Snapshot: queue unavailable", "error", err)
	} else {
		next.Pending = make([]PendingItem, 0, len(queued))
		for _, p := range queued {
			next.Pending = append(next.Pending, PendingItem{ID: p.ID, Name: p.Name, Size: p.Size, EnqueuedAt: p.EnqueuedAt})
		}
	}
	if next.History == nil {
		next.History = []core.AnalysisEntry{}
	}
	if next.Pending == nil {
		next.Pending = []PendingItem{}
	}
	next.PendingCount = len(next.Pending)

	s.mu.Lock()
	next.Analyzing = s.analyzing
	next.LastError = s.lastError
	s.mu.Unlock()

	s.snapshots.publish(next)
}

// snapshotHub fans the latest snapshot out to subscribers.
type snapshotHub struct {
	build sync.Mutex // serializes refresh

	mu     sync.Mutex
	cur    Snapshot
	nextID int
	subs   map[int]chan Snapshot
	closed bool
}

func newSnapshotHub() *snapshotHub {
	return &snapshotHub{subs: map[int]chan Snapshot{}}
}

func (h *snapshotHub) latest() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

func (h *snapshotHub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cur = snap
	for _, ch := range h.subs {
		offer(ch, snap)
	}
}

func (h *snapshotHub) subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	offer(ch, h.cur)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *snapshotHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// offer replaces whatever is buffered in ch with snap.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
