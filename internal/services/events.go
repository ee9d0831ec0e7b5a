package services

import (
	"context"

	"expensetracker/internal/core"
)

// EventPublisher receives domain events. Implementations must be safe for
// concurrent use; a nil EventPublisher disables publishing.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, e core.Expense) error
	PublishExpenseDeleted(ctx context.Context, id string) error
	PublishAnalysisCompleted(ctx context.Context, entry core.AnalysisEntry) error
}
