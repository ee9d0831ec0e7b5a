package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/appstate"
	"expensetracker/internal/core"

	"golang.org/x/sync/semaphore"
)

const (
	maxOfflineMiB = core.MaxOfflineFileSize / (1024 * 1024)

	genericAnalysisFailure = "Analysis failed. Please try again."
)

// Analyzer turns a file into a text summary using apiKey.
type Analyzer interface {
	Analyze(ctx context.Context, file core.FileUpload, apiKey string) (string, error)
}

// Connectivity is the reachability source the orchestrator follows.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// AnalysisService decides for every submitted file whether to analyze it
// now, queue it or reject it, and drains the queue when analysis becomes
// possible again. All analyze calls are serialized.
type AnalysisService struct {
	analyzer Analyzer
	creds    *appstate.CredentialStore
	history  *appstate.HistoryStore
	queue    *appstate.PendingQueue
	conn     Connectivity
	events   EventPublisher
	now      func() time.Time

	sem *semaphore.Weighted

	mu        sync.Mutex
	analyzing bool
	lastError string
	closed    bool

	snapshots *snapshotHub

	bgCtx       context.Context
	bgCancel    context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

func NewAnalysisService(
	analyzer Analyzer,
	creds *appstate.CredentialStore,
	history *appstate.HistoryStore,
	queue *appstate.PendingQueue,
	conn Connectivity,
	events EventPublisher,
) *AnalysisService {
	bgCtx, cancel := context.WithCancel(context.Background())
	return &AnalysisService{
		analyzer:  analyzer,
		creds:     creds,
		history:   history,
		queue:     queue,
		conn:      conn,
		events:    events,
		now:       time.Now,
		sem:       semaphore.NewWeighted(1),
		snapshots: newSnapshotHub(),
		bgCtx:     bgCtx,
		bgCancel:  cancel,
	}
}

// Start follows connectivity changes and drains the queue right away when
// the service is already online with a saved key.
func (s *AnalysisService) Start(ctx context.Context) {
	s.unsubscribe = s.conn.Subscribe(s.onConnectivity)
	s.refresh(ctx)
	if s.conn.Online() {
		s.triggerDrain()
	}
}

// Close stops background drains and waits for them. In-flight items that
// did not finish are put back in the queue.
func (s *AnalysisService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bgCancel()
	s.wg.Wait()
	s.snapshots.closeAll()
}

// Wait blocks until every background drain started so far has finished.
func (s *AnalysisService) Wait() {
	s.wg.Wait()
}

func (s *AnalysisService) onConnectivity(online bool) {
	s.refresh(s.bgCtx)
	if online {
		s.triggerDrain()
	}
}

// triggerDrain starts a background drain unless Close has begun.
func (s *AnalysisService) triggerDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report, err := s.Drain(s.bgCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Background drain failed", "error", err)
			return
		}
		if report.Taken > 0 {
			slog.Info("Pending analyses drained",
				"taken", report.Taken,
				"succeeded", report.Succeeded,
				"failed", report.Failed,
				"requeued", report.Requeued)
		}
	}()
}

// Submit applies the decision policy to one file.
func (s *AnalysisService) Submit(ctx context.Context, file core.FileUpload) Outcome {
	out := Outcome{FileName: file.Name}

	key, hasKey, err := s.creds.Get(ctx)
	if err != nil {
		return s.fail(ctx, out, err)
	}
	online := s.conn.Online()

	if file.Size() > core.MaxOfflineFileSize && (!hasKey || !online) {
		out.Status = StatusRejectedOversize
		out.Err = &ValidationError{Reason: ReasonOversizeOffline}
		slog.WarnContext(ctx, "Oversized file rejected", "file_name", file.Name, "size", file.Size(), "online", online, "has_key", hasKey)
		return out
	}
	if !hasKey {
		return s.enqueue(ctx, file, StatusQueuedNeedsCredential, ReasonMissingCredential)
	}
	if !online {
		return s.enqueue(ctx, file, StatusQueuedOffline, ReasonOffline)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(ctx, out, err)
	}
	defer s.sem.Release(1)
	return s.analyzeNow(ctx, file, key)
}

// SubmitAll submits files one after another, in order.
func (s *AnalysisService) SubmitAll(ctx context.Context, files []core.FileUpload) []Outcome {
	outs := make([]Outcome, 0, len(files))
	for _, f := range files {
		outs = append(outs, s.Submit(ctx, f))
	}
	return outs
}

func (s *AnalysisService) enqueue(ctx context.Context, file core.FileUpload, status SubmitStatus, reason ValidationReason) Outcome {
	out := Outcome{FileName: file.Name}
	if err := s.queue.Enqueue(ctx, appstate.NewPendingFile(file, s.now())); err != nil {
		return s.fail(ctx, out, fmt.Errorf("queue %s: %w", file.Name, err))
	}
	slog.InfoContext(ctx, "File queued for later analysis", "file_name", file.Name, "size", file.Size(), "reason", reason)
	s.refresh(ctx)
	out.Status = status
	out.Err = &ValidationError{Reason: reason}
	return out
}

// analyzeNow runs one analysis. The caller holds the semaphore.
func (s *AnalysisService) analyzeNow(ctx context.Context, file core.FileUpload, key string) Outcome {
	out := Outcome{FileName: file.Name}

	s.setAnalyzing(ctx)
	defer s.clearAnalyzing(ctx)

	summary, err := s.analyzer.Analyze(ctx, file, key)
	if err != nil {
		s.setError(err)
		slog.ErrorContext(ctx, "Analysis failed", "file_name", file.Name, "error", err)
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	entry := core.AnalysisEntry{FileName: file.Name, Summary: summary, AnalyzedAt: s.now()}
	if _, err := s.history.Append(ctx, entry); err != nil {
		s.setError(err)
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if s.events != nil {
		if err := s.events.PublishAnalysisCompleted(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "Failed to publish analysis completed event", "file_name", file.Name, "error", err)
		}
	}

	out.Status = StatusAnalyzed
	out.Entry = &entry
	return out
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Taken     int
	Succeeded int
	Failed    int
	Requeued  int
	Outcomes  []Outcome
}

// Drain analyzes every queued file in enqueue order. It is a no-op while
// offline, without a key or with an empty queue. If connectivity or the
// key goes away mid-drain, or ctx ends, the unprocessed files go back to
// the queue. Files whose analysis failed are not requeued.
func (s *AnalysisService) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	if ready, err := s.drainReady(ctx); err != nil || !ready {
		return report, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return report, err
	}
	defer s.sem.Release(1)

	// State may have changed while waiting for the semaphore.
	if ready, err := s.drainReady(ctx); err != nil || !ready {
		return report, err
	}

	items, err := s.queue.DrainAll(ctx)
	if err != nil {
		return report, fmt.Errorf("drain queue: %w", err)
	}
	report.Taken = len(items)
	s.refresh(ctx)

	for i, item := range items {
		key, ok := s.drainKey(ctx)
		if !ok {
			report.Requeued = s.requeue(ctx, items[i:])
			break
		}
		out := s.analyzeNow(ctx, item.Upload(), key)
		if out.Status == StatusFailed && ctx.Err() != nil {
			report.Requeued = s.requeue(ctx, items[i:])
			break
		}
		report.Outcomes = append(report.Outcomes, out)
		if out.Status == StatusAnalyzed {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	s.refresh(ctx)
	return report, ctx.Err()
}

func (s *AnalysisService) drainReady(ctx context.Context) (bool, error) {
	if !s.conn.Online() {
		return false, nil
	}
	if _, ok, err := s.creds.Get(ctx); err != nil || !ok {
		return false, err
	}
	n, err := s.queue.Len(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// drainKey re-checks the preconditions before each queued file.
func (s *AnalysisService) drainKey(ctx context.Context) (string, bool) {
	if ctx.Err() != nil || !s.conn.Online() {
		return "", false
	}
	key, ok, err := s.creds.Get(ctx)
	if err != nil || !ok {
		return "", false
	}
	return key, true
}

func (s *AnalysisService) requeue(ctx context.Context, items []core.PendingFile) int {
	wctx := context.WithoutCancel(ctx)
	if err := s.queue.Requeue(wctx, items); err != nil {
		slog.ErrorContext(wctx, "Failed to requeue pending files", "count", len(items), "error", err)
		return 0
	}
	slog.InfoContext(wctx, "Pending files requeued", "count", len(items))
	return len(items)
}

// SaveAPIKey stores key and, when online, drains the queue in the
// background.
func (s *AnalysisService) SaveAPIKey(ctx context.Context, key string) error {
	if err := s.creds.Save(ctx, key); err != nil {
		if errors.Is(err, appstate.ErrEmptyCredential) {
			return &ValidationError{Reason: ReasonEmptyCredential, Err: err}
		}
		return err
	}
	slog.InfoContext(ctx, "API key saved")
	s.refresh(ctx)
	if s.conn.Online() {
		s.triggerDrain()
	}
	return nil
}

// ClearAPIKey forgets the stored key.
func (s *AnalysisService) ClearAPIKey(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "API key cleared")
	s.refresh(ctx)
	return nil
}

// APIKey returns the stored key, if any.
func (s *AnalysisService) APIKey(ctx context.Context) (string, bool, error) {
	return s.creds.Get(ctx)
}

// History returns past analyses, newest first.
func (s *AnalysisService) History(ctx context.Context) ([]core.AnalysisEntry, error) {
	return s.history.List(ctx)
}

// Pending returns queued files, newest first.
func (s *AnalysisService) Pending(ctx context.Context) ([]core.PendingFile, error) {
	return s.queue.List(ctx)
}

// DismissError clears the transient error.
func (s *AnalysisService) DismissError(ctx context.Context) {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
	s.refresh(ctx)
}

func (s *AnalysisService) fail(ctx context.Context, out Outcome, err error) Outcome {
	s.setError(err)
	s.refresh(ctx)
	out.Status = StatusFailed
	out.Err = err
	return out
}

func (s *AnalysisService) setAnalyzing(ctx context.Context) {
	s.mu.Lock()
	s.analyzing = true
	s.lastError = ""
	s.mu.Unlock()
	s.refresh(ctx)
}

func (s *AnalysisService) clearAnalyzing(ctx context.Context) {
	s.mu.Lock()
	s.analyzing = false
	s.mu.Unlock()
	s.refresh(context.WithoutCancel(ctx))
}

func (s *AnalysisService) setError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = genericAnalysisFailure
	}
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}
