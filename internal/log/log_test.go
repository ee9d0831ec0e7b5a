package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expensetracker/internal/core"

	"github.com/shopspring/decimal"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelDebug, ComponentApp).WithComponent(ComponentAnalysis)

	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "component=analysis") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component should appear once: %q", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: slog.LevelInfo, JSON: true, Component: ComponentCLI, Output: &buf}).With("n", 1).Info("done")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if rec["component"] != ComponentCLI || rec["msg"] != "done" || rec["n"] != float64(1) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelWarn, ComponentApp)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewText(&buf, slog.LevelInfo, ComponentApp)

	var got *Logger
	h := Middleware(base.WithComponent(ComponentHTTP), func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("expected http component logger, got %+v", got)
	}
	got.Info("inside")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("expected request id in output, got %q", buf.String())
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Errorf("expected fallback logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelInfo, ComponentApp))
	ctx := context.Background()

	sl.LogExpenseCreated(ctx, core.Expense{
		ID:         "e1",
		Title:      "Lunch",
		Amount:     decimal.RequireFromString("12.5"),
		Category:   "Food",
		OccurredOn: core.NewDate(2025, 3, 1),
	})
	sl.LogAnalysisOutcome(ctx, "a.csv", "rejected_oversize", errors.New("too big"))
	sl.LogError(ctx, "boom", errors.New("bad"), ComponentStorage, OpList, nil)

	out := buf.String()
	for _, want := range []string{"amount=12.50", "occurred_on=2025-03-01", "level=WARN", "file_name=a.csv", "error=bad", "operation=list", "component=storage"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}
