package log

import (
	"context"
	"log/slog"
	"net/http"

	"expensetracker/internal/core"
)

// StructuredLogger writes the records the app emits at fixed points:
// request start and end, expense writes, analysis outcomes and errors.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(l *Logger) *StructuredLogger {
	return &StructuredLogger{logger: l}
}

func (sl *StructuredLogger) emit(ctx context.Context, level slog.Level, msg string, attrs LogFields) {
	sl.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	sl.emit(ctx, slog.LevelDebug, "HTTP request started", LogFields{
		slog.String(FieldMethod, r.Method),
		slog.String(FieldPath, r.URL.Path),
		slog.String(FieldQuery, r.URL.RawQuery),
		slog.String(FieldUserAgent, r.UserAgent()),
		slog.String(FieldClientIP, clientIP),
	})
}

// LogHTTPEnd logs 4xx at warn and 5xx at error.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, status int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	sl.emit(ctx, level, "HTTP request completed", LogFields{
		slog.String(FieldMethod, r.Method),
		slog.String(FieldPath, r.URL.Path),
		slog.Int(FieldStatusCode, status),
		slog.Int64(FieldDuration, durationMs),
		slog.String(FieldClientIP, clientIP),
	})
}

func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, e core.Expense) {
	attrs := NewFields().
		WithExpense(e.ID, e.Title, core.FormatAmount(e.Amount), e.Category, e.OccurredOn.String()).
		WithOperation(OpCreate)
	sl.emit(ctx, slog.LevelInfo, "Expense created successfully", attrs)
}

// LogAnalysisOutcome logs where a submitted file ended up. Failed and
// rejected files are logged at warn.
func (sl *StructuredLogger) LogAnalysisOutcome(ctx context.Context, fileName, status string, err error) {
	level := slog.LevelInfo
	if status == "failed" || status == "rejected_oversize" {
		level = slog.LevelWarn
	}
	attrs := NewFields().WithOperation(OpAnalyze).WithError(err)
	attrs = append(attrs, slog.String(FieldFileName, fileName), slog.String(FieldAnalysisState, status))
	sl.emit(ctx, level, "Analysis request handled", attrs)
}

// LogError logs err with the component and operation that hit it.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	attrs := fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).LogAttrs(ctx, slog.LevelError, msg, attrs...)
}
