package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensetracker/internal/core"

	"github.com/google/uuid"
)

// EventType doubles as the routing key on the topic exchange.
type EventType string

const (
	EventExpenseCreated    EventType = "expense.created"
	EventExpenseDeleted    EventType = "expense.deleted"
	EventAnalysisCompleted EventType = "analysis.completed"
)

// Event is the envelope published for every domain change.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Expense   *ExpensePayload  `json:"expense,omitempty"`
	ExpenseID string           `json:"expense_id,omitempty"`
	Analysis  *AnalysisPayload `json:"analysis,omitempty"`
}

type ExpensePayload struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	OccurredOn string `json:"occurred_on"`
	Notes      string `json:"notes,omitempty"`
}

type AnalysisPayload struct {
	FileName   string    `json:"file_name"`
	Summary    string    `json:"summary"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

func newEvent(t EventType) *Event {
	return &Event{ID: uuid.NewString(), Type: t, Timestamp: time.Now()}
}

// NewExpenseCreatedEvent carries the full expense.
func NewExpenseCreatedEvent(e core.Expense) *Event {
	ev := newEvent(EventExpenseCreated)
	ev.Expense = &ExpensePayload{
		ID:         e.ID,
		Title:      e.Title,
		Amount:     core.FormatAmount(e.Amount),
		Category:   e.Category,
		OccurredOn: e.OccurredOn.String(),
		Notes:      e.Notes,
	}
	return ev
}

// NewExpenseDeletedEvent carries only the id of the removed expense.
func NewExpenseDeletedEvent(id string) *Event {
	ev := newEvent(EventExpenseDeleted)
	ev.ExpenseID = id
	return ev
}

func NewAnalysisCompletedEvent(entry core.AnalysisEntry) *Event {
	ev := newEvent(EventAnalysisCompleted)
	ev.Analysis = &AnalysisPayload{
		FileName:   entry.FileName,
		Summary:    entry.Summary,
		AnalyzedAt: entry.AnalyzedAt,
	}
	return ev
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and checks it has a known type.
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Type {
	case EventExpenseCreated, EventExpenseDeleted, EventAnalysisCompleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}
