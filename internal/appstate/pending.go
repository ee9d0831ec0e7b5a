package appstate

import (
	"context"
	"sync"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"

	"github.com/google/uuid"
)

// PendingQueue persists files waiting for analysis. The stored list is
// newest first and never longer than core.MaxPendingFiles.
type PendingQueue struct {
	mu    sync.Mutex
	state ports.StateStore
	limit int
}

func NewPendingQueue(state ports.StateStore) *PendingQueue {
	return &PendingQueue{state: state, limit: core.MaxPendingFiles}
}

// NewPendingFile wraps an upload for queueing, copying its payload.
func NewPendingFile(f core.FileUpload, now time.Time) core.PendingFile {
	return core.PendingFile{
		ID:         uuid.NewString(),
		Name:       f.Name,
		Type:       f.Type,
		Size:       f.Size(),
		Data:       append([]byte(nil), f.Data...),
		EnqueuedAt: now,
	}
}

// Enqueue puts p at the head of the queue, evicting the oldest entries
// beyond the limit.
func (q *PendingQueue) Enqueue(ctx context.Context, p core.PendingFile) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return err
	}
	next := make([]core.PendingFile, 0, len(current)+1)
	next = append(next, p)
	next = append(next, current...)
	return q.save(ctx, next)
}

// DrainAll empties the queue and returns what it held, oldest first.
func (q *PendingQueue) DrainAll(ctx context.Context) ([]core.PendingFile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}
	if err := q.save(ctx, []core.PendingFile{}); err != nil {
		return nil, err
	}
	out := make([]core.PendingFile, len(current))
	for i, p := range current {
		out[len(current)-1-i] = p
	}
	return out, nil
}

// Requeue returns items taken by DrainAll (oldest first) to the oldest end
// of the queue, behind anything enqueued since. Overflow still evicts the
// oldest entries.
func (q *PendingQueue) Requeue(ctx context.Context, items []core.PendingFile) error {
	if len(items) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return err
	}
	next := make([]core.PendingFile, 0, len(current)+len(items))
	next = append(next, current...)
	for i := len(items) - 1; i >= 0; i-- {
		next = append(next, items[i])
	}
	return q.save(ctx, next)
}

// List returns the queue newest first.
func (q *PendingQueue) List(ctx context.Context) ([]core.PendingFile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued files.
func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (q *PendingQueue) load(ctx context.Context) ([]core.PendingFile, error) {
	var items []core.PendingFile
	ok, err := loadJSON(ctx, q.state, KeyPending, &items)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.PendingFile{}, nil
	}
	if len(items) > q.limit {
		items = items[:q.limit]
	}
	return items, nil
}

func (q *PendingQueue) save(ctx context.Context, items []core.PendingFile) error {
	if len(items) > q.limit {
		items = items[:q.limit]
	}
	return saveJSON(ctx, q.state, KeyPending, items)
}
