package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"expensetracker/internal/appstate"
	"expensetracker/internal/connectivity"
	"expensetracker/internal/core"
	"expensetracker/internal/openai"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage/memory"
)

// fakeAnalyzer records calls and delegates to fn.
type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     []string
	keys      []string
	active    int32
	maxActive int32
	fn        func(ctx context.Context, file core.FileUpload) (string, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, file core.FileUpload, apiKey string) (string, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		m := atomic.LoadInt32(&f.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxActive, m, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, file.Name)
	f.keys = append(f.keys, apiKey)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "summary of " + file.Name, nil
	}
	return fn(ctx, file)
}

func (f *fakeAnalyzer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	svc      *AnalysisService
	analyzer *fakeAnalyzer
	monitor  *connectivity.Monitor
	state    ports.StateStore
	queue    *appstate.PendingQueue
	history  *appstate.HistoryStore
	creds    *appstate.CredentialStore
}

func newHarness(t *testing.T, online bool, key string, analyzer Analyzer) *harness {
	t.Helper()
	state := memory.New(nil).State()
	h := &harness{
		monitor: connectivity.NewMonitor(online, nil, 0),
		state:   state,
		queue:   appstate.NewPendingQueue(state),
		history: appstate.NewHistoryStore(state),
		creds:   appstate.NewCredentialStore(state),
	}
	if key != "" {
		if err := h.creds.Save(context.Background(), key); err != nil {
			t.Fatalf("save key: %v", err)
		}
	}
	if analyzer == nil {
		h.analyzer = &fakeAnalyzer{}
		analyzer = h.analyzer
	}
	h.svc = NewAnalysisService(analyzer, h.creds, h.history, h.queue, h.monitor, nil)
	h.svc.Start(context.Background())
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) historyNames(t *testing.T) []string {
	t.Helper()
	list, err := h.history.List(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.FileName)
	}
	return names
}

func smallFile(name string) core.FileUpload {
	return core.FileUpload{Name: name, Type: "text/csv", Data: []byte("date,amount\n" + name)}
}

func TestSubmit_NoCredentialQueuesIdenticalBytes(t *testing.T) {
	h := newHarness(t, true, "", nil)
	file := core.FileUpload{Name: "receipts.pdf", Type: "application/pdf", Data: []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff}}

	out := h.svc.Submit(context.Background(), file)
	if out.Status != StatusQueuedNeedsCredential {
		t.Fatalf("expected queued needs credential, got %v", out.Status)
	}
	var ve *ValidationError
	if !errors.As(out.Err, &ve) || ve.Reason != ReasonMissingCredential {
		t.Fatalf("expected missing credential reason, got %v", out.Err)
	}
	if len(h.analyzer.Calls()) != 0 {
		t.Fatalf("analyzer must not be called")
	}
	queued, _ := h.queue.List(context.Background())
	if len(queued) != 1 || !bytes.Equal(queued[0].Data, file.Data) || queued[0].Type != "application/pdf" {
		t.Fatalf("unexpected queue contents %+v", queued)
	}
	if snap := h.svc.Snapshot(); snap.PendingCount != 1 || snap.APIKeySet {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSubmit_OfflineQueues(t *testing.T) {
	h := newHarness(t, false, "sk-test", nil)
	out := h.svc.Submit(context.Background(), smallFile("a.csv"))
	if out.Status != StatusQueuedOffline || out.Level() != "info" {
		t.Fatalf("expected queued offline, got %v", out.Status)
	}
	if n, _ := h.queue.Len(context.Background()); n != 1 {
		t.Fatalf("expected 1 queued file, got %d", n)
	}
}

func TestSubmit_OversizeRules(t *testing.T) {
	big := core.FileUpload{Name: "big.bin", Data: make([]byte, core.MaxOfflineFileSize+1)}
	exact := core.FileUpload{Name: "exact.bin", Data: make([]byte, core.MaxOfflineFileSize)}

	tests := []struct {
		name   string
		online bool
		key    string
		file   core.FileUpload
		want   SubmitStatus
		queued int
	}{
		{"oversize offline with key", false, "sk", big, StatusRejectedOversize, 0},
		{"oversize online without key", true, "", big, StatusRejectedOversize, 0},
		{"oversize offline without key", false, "", big, StatusRejectedOversize, 0},
		{"oversize online with key", true, "sk", big, StatusAnalyzed, 0},
		{"threshold size offline is queued", false, "sk", exact, StatusQueuedOffline, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.online, tt.key, nil)
			out := h.svc.Submit(context.Background(), tt.file)
			if out.Status != tt.want {
				t.Fatalf("expected %v, got %v (err=%v)", tt.want, out.Status, out.Err)
			}
			if n, _ := h.queue.Len(context.Background()); n != tt.queued {
				t.Fatalf("expected %d queued, got %d", tt.queued, n)
			}
			if tt.want == StatusRejectedOversize {
				var ve *ValidationError
				if !errors.As(out.Err, &ve) || ve.Reason != ReasonOversizeOffline {
					t.Fatalf("expected oversize reason, got %v", out.Err)
				}
				if !strings.Contains(out.Message(), "5 MiB") {
					t.Fatalf("expected size limit message, got %q", out.Message())
				}
			}
		})
	}
}

// remoteAPI fakes both remote endpoints and records the call order.
func remoteAPI(t *testing.T, responseBody string) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	calls := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path)
		mu.Unlock()
		io.Copy(io.Discard, r.Body)
		switch r.URL.Path {
		case "/v1/files":
			io.WriteString(w, `{"id":"file-1","filename":"f","purpose":"assistants"}`)
		case "/v1/responses":
			io.WriteString(w, responseBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSubmit_AnalyzesThroughRemoteAPI(t *testing.T) {
	srv, calls := remoteAPI(t, `{"id":"r","status":"completed","output":[{"id":"o","content":[{"type":"output_text","text":{"value":"X"}}]}]}`)
	client := openai.NewClient(openai.Config{BaseURL: srv.URL, TempDir: t.TempDir()}, srv.Client())
	h := newHarness(t, true, "sk-test", client)

	out := h.svc.Submit(context.Background(), smallFile("march.csv"))
	if out.Status != StatusAnalyzed || out.Entry == nil || out.Entry.Summary != "X" {
		t.Fatalf("expected analyzed with summary X, got %+v", out)
	}
	if strings.Join(*calls, ",") != "/v1/files,/v1/responses" {
		t.Fatalf("expected upload then inference, got %v", *calls)
	}
	history, _ := h.history.List(context.Background())
	if len(history) != 1 || history[0].Summary != "X" || history[0].FileName != "march.csv" {
		t.Fatalf("unexpected history %+v", history)
	}
	snap := h.svc.Snapshot()
	if snap.Analyzing || snap.LastError != "" || len(snap.History) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSubmit_MissingOutputLeavesHistoryUnchanged(t *testing.T) {
	srv, _ := remoteAPI(t, `{"id":"r","status":"completed"}`)
	client := openai.NewClient(openai.Config{BaseURL: srv.URL, TempDir: t.TempDir()}, srv.Client())
	h := newHarness(t, true, "sk-test", client)
	_, _ = h.history.Append(context.Background(), core.AnalysisEntry{FileName: "old", Summary: "s", AnalyzedAt: time.Now()})

	out := h.svc.Submit(context.Background(), smallFile("broken.csv"))
	if out.Status != StatusFailed || !errors.Is(out.Err, openai.ErrNoOutput) {
		t.Fatalf("expected no output failure, got %v %v", out.Status, out.Err)
	}
	if names := h.historyNames(t); len(names) != 1 || names[0] != "old" {
		t.Fatalf("history changed: %v", names)
	}
	snap := h.svc.Snapshot()
	if snap.Analyzing {
		t.Fatalf("analyzing flag left set")
	}
	if snap.LastError == "" {
		t.Fatalf("expected error message")
	}
}

func TestSubmit_ErrorFallbackAndClearOnNextAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := newHarness(t, true, "sk", analyzer)

	analyzer.fn = func(context.Context, core.FileUpload) (string, error) { return "", errors.New("") }
	h.svc.Submit(context.Background(), smallFile("a"))
	if got := h.svc.Snapshot().LastError; got != genericAnalysisFailure {
		t.Fatalf("expected generic fallback, got %q", got)
	}

	analyzer.fn = nil
	h.svc.Submit(context.Background(), smallFile("b"))
	if got := h.svc.Snapshot().LastError; got != "" {
		t.Fatalf("expected error cleared, got %q", got)
	}
}

func TestDrain_OnReconnectInEnqueueOrder(t *testing.T) {
	h := newHarness(t, false, "sk-test", nil)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		if out := h.svc.Submit(ctx, smallFile(name)); out.Status != StatusQueuedOffline {
			t.Fatalf("expected %s queued, got %v", name, out.Status)
		}
	}

	h.monitor.Set(true)
	h.svc.Wait()

	if calls := h.analyzer.Calls(); strings.Join(calls, "") != "ABC" {
		t.Fatalf("expected drain order A,B,C, got %v", calls)
	}
	if names := h.historyNames(t); strings.Join(names, "") != "CBA" {
		t.Fatalf("expected history prefix C,B,A, got %v", names)
	}
	if n, _ := h.queue.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	if h.svc.Snapshot().PendingCount != 0 {
		t.Fatalf("snapshot still reports pending files")
	}
}

func TestDrain_NoOpWhenNotReady(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, false, "sk", nil)
	h.svc.Submit(ctx, smallFile("a"))
	if report, err := h.svc.Drain(ctx); err != nil || report.Taken != 0 {
		t.Fatalf("expected no-op while offline, got %+v err=%v", report, err)
	}

	h = newHarness(t, true, "", nil)
	h.svc.Submit(ctx, smallFile("a"))
	if report, err := h.svc.Drain(ctx); err != nil || report.Taken != 0 {
		t.Fatalf("expected no-op without key, got %+v err=%v", report, err)
	}
	if n, _ := h.queue.Len(ctx); n != 1 {
		t.Fatalf("queue must stay intact, got %d", n)
	}
}

func TestSaveAPIKey_DrainsWhenOnline(t *testing.T) {
	h := newHarness(t, true, "", nil)
	ctx := context.Background()
	h.svc.Submit(ctx, smallFile("first"))
	h.svc.Submit(ctx, smallFile("second"))

	if err := h.svc.SaveAPIKey(ctx, "  sk-new  "); err != nil {
		t.Fatalf("save key: %v", err)
	}
	h.svc.Wait()

	if names := h.historyNames(t); strings.Join(names, ",") != "second,first" {
		t.Fatalf("unexpected history %v", names)
	}
	h.analyzer.mu.Lock()
	keys := append([]string(nil), h.analyzer.keys...)
	h.analyzer.mu.Unlock()
	for _, k := range keys {
		if k != "sk-new" {
			t.Fatalf("expected trimmed key to be used, got %q", k)
		}
	}
	if snap := h.svc.Snapshot(); !snap.APIKeySet || snap.MaskedKey == "" {
		t.Fatalf("expected key in snapshot, got %+v", snap)
	}
}

func TestSaveAPIKey_OfflineDoesNotDrain(t *testing.T) {
	h := newHarness(t, false, "", nil)
	ctx := context.Background()
	h.svc.Submit(ctx, smallFile("a"))
	if err := h.svc.SaveAPIKey(ctx, "sk"); err != nil {
		t.Fatalf("save key: %v", err)
	}
	h.svc.Wait()
	if len(h.analyzer.Calls()) != 0 {
		t.Fatalf("expected no analysis while offline")
	}
}

func TestSaveAPIKey_Empty(t *testing.T) {
	h := newHarness(t, true, "", nil)
	err := h.svc.SaveAPIKey(context.Background(), "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Reason != ReasonEmptyCredential {
		t.Fatalf("expected empty credential error, got %v", err)
	}
}

func TestSaveAPIKey_AfterCloseDoesNotDrain(t *testing.T) {
	h := newHarness(t, true, "", nil)
	ctx := context.Background()
	h.svc.Submit(ctx, smallFile("late"))
	h.svc.Close()

	if err := h.svc.SaveAPIKey(ctx, "sk-late"); err != nil {
		t.Fatalf("save key: %v", err)
	}
	h.svc.Wait()

	if calls := h.analyzer.Calls(); len(calls) != 0 {
		t.Fatalf("no drain should start after Close, got %v", calls)
	}
	if pending, _ := h.queue.List(ctx); len(pending) != 1 {
		t.Fatalf("expected the file to stay queued, got %d", len(pending))
	}
}

func TestClearAPIKey_QueuesAgain(t *testing.T) {
	h := newHarness(t, true, "sk", nil)
	ctx := context.Background()
	if err := h.svc.ClearAPIKey(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if out := h.svc.Submit(ctx, smallFile("a")); out.Status != StatusQueuedNeedsCredential {
		t.Fatalf("expected queue after clearing key, got %v", out.Status)
	}
}

func TestDrain_RequeuesWhenConnectivityDrops(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := newHarness(t, false, "sk", analyzer)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		h.svc.Submit(ctx, smallFile(name))
	}

	analyzer.fn = func(_ context.Context, f core.FileUpload) (string, error) {
		if f.Name == "A" {
			h.monitor.Set(false)
		}
		return "ok " + f.Name, nil
	}
	h.monitor.Set(true)
	h.svc.Wait()

	if calls := analyzer.Calls(); strings.Join(calls, "") != "A" {
		t.Fatalf("expected only A analyzed before the drop, got %v", calls)
	}
	pending, _ := h.queue.List(ctx)
	if len(pending) != 2 || pending[0].Name != "C" || pending[1].Name != "B" {
		t.Fatalf("expected B and C requeued, got %+v", pending)
	}

	h.monitor.Set(true)
	h.svc.Wait()
	if names := h.historyNames(t); strings.Join(names, "") != "CBA" {
		t.Fatalf("expected C,B,A after second drain, got %v", names)
	}
}

func TestDrain_FailedItemsAreNotRequeued(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := newHarness(t, false, "sk", analyzer)
	ctx := context.Background()
	h.svc.Submit(ctx, smallFile("bad"))
	h.svc.Submit(ctx, smallFile("good"))

	analyzer.fn = func(_ context.Context, f core.FileUpload) (string, error) {
		if f.Name == "bad" {
			return "", &openai.UploadError{StatusCode: http.StatusBadRequest}
		}
		return "fine", nil
	}
	h.monitor.Set(true)
	h.svc.Wait()

	if n, _ := h.queue.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	if names := h.historyNames(t); strings.Join(names, ",") != "good" {
		t.Fatalf("unexpected history %v", names)
	}
}

func TestSubmit_WaitsForRunningDrain(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := newHarness(t, false, "sk", analyzer)
	ctx := context.Background()
	h.svc.Submit(ctx, smallFile("queued"))

	started := make(chan struct{})
	release := make(chan struct{})
	analyzer.fn = func(_ context.Context, f core.FileUpload) (string, error) {
		if f.Name == "queued" {
			close(started)
			<-release
		}
		return "ok", nil
	}

	h.monitor.Set(true)
	<-started

	done := make(chan Outcome, 1)
	go func() { done <- h.svc.Submit(ctx, smallFile("fresh")) }()

	time.Sleep(50 * time.Millisecond)
	if calls := analyzer.Calls(); len(calls) != 1 {
		t.Fatalf("fresh submission ran during drain: %v", calls)
	}
	if !h.svc.Snapshot().Analyzing {
		t.Fatalf("expected analyzing flag during drain")
	}

	close(release)
	out := <-done
	h.svc.Wait()
	if out.Status != StatusAnalyzed {
		t.Fatalf("expected fresh file analyzed, got %v", out.Status)
	}
	if n := atomic.LoadInt32(&analyzer.maxActive); n != 1 {
		t.Fatalf("analyses overlapped: max active %d", n)
	}
	if calls := analyzer.Calls(); strings.Join(calls, ",") != "queued,fresh" {
		t.Fatalf("unexpected order %v", calls)
	}
}

func TestClose_RequeuesInterruptedDrain(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	state := memory.New(nil).State()
	monitor := connectivity.NewMonitor(false, nil, 0)
	creds := appstate.NewCredentialStore(state)
	_ = creds.Save(context.Background(), "sk")
	queue := appstate.NewPendingQueue(state)
	svc := NewAnalysisService(analyzer, creds, appstate.NewHistoryStore(state), queue, monitor, nil)
	svc.Start(context.Background())

	for _, n := range []string{"A", "B"} {
		svc.Submit(context.Background(), smallFile(n))
	}
	started := make(chan struct{})
	var once sync.Once
	analyzer.fn = func(ctx context.Context, _ core.FileUpload) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}
	monitor.Set(true)
	<-started
	svc.Close()

	pending, _ := queue.List(context.Background())
	if len(pending) != 2 {
		t.Fatalf("expected both files back in the queue, got %d", len(pending))
	}
}

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	h := newHarness(t, false, "", nil)
	ch, cancel := h.svc.Subscribe()
	defer cancel()

	h.svc.Submit(context.Background(), smallFile("one"))
	h.svc.Submit(context.Background(), smallFile("two"))

	snap := <-ch
	if snap.PendingCount != 2 || snap.Pending[0].Name != "two" {
		t.Fatalf("expected latest snapshot with 2 pending, got %+v", snap)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestOutcomeMessages(t *testing.T) {
	tests := []struct {
		out   Outcome
		level string
		has   string
	}{
		{Outcome{FileName: "a", Status: StatusAnalyzed}, "success", "analysis complete"},
		{Outcome{FileName: "a", Status: StatusQueuedNeedsCredential}, "warning", "API key"},
		{Outcome{FileName: "a", Status: StatusQueuedOffline}, "info", "offline"},
		{Outcome{FileName: "a", Status: StatusRejectedOversize, Err: &ValidationError{Reason: ReasonOversizeOffline}}, "error", "5 MiB"},
		{Outcome{FileName: "a", Status: StatusFailed, Err: errors.New("boom")}, "error", "boom"},
		{Outcome{FileName: "a", Status: StatusFailed}, "error", genericAnalysisFailure},
	}
	for _, tt := range tests {
		if tt.out.Level() != tt.level || !strings.Contains(tt.out.Message(), tt.has) {
			t.Errorf("%v: level=%s message=%q", tt.out.Status, tt.out.Level(), tt.out.Message())
		}
	}
}
