package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"expensetracker/internal/core"
)

// Toast levels understood by the notification handler in app.js.
type Toast string

const (
	ToastSuccess Toast = "success"
	ToastInfo    Toast = "info"
	ToastWarning Toast = "warning"
	ToastError   Toast = "error"
)

var toastDuration = map[Toast]time.Duration{
	ToastSuccess: 3 * time.Second,
	ToastInfo:    4 * time.Second,
	ToastWarning: 5 * time.Second,
	ToastError:   5 * time.Second,
}

// Reply collects an htmx response: status, HX-Trigger events and an HTML
// fragment. Methods chain and the last call is Write.
type Reply struct {
	status int
	events map[string]any
	html   string
}

func NewReply() *Reply {
	return &Reply{status: http.StatusOK, events: map[string]any{}}
}

// Fail is an error reply whose message is rendered escaped.
func Fail(status int, msg string) *Reply {
	r := NewReply()
	r.status = status
	r.html = `<div class="error">` + template.HTMLEscapeString(msg) + `</div>`
	return r
}

func (r *Reply) Status(code int) *Reply {
	r.status = code
	return r
}

// Event adds an HX-Trigger event. A nil detail is sent as {}.
func (r *Reply) Event(name string, detail any) *Reply {
	if detail == nil {
		detail = struct{}{}
	}
	r.events[name] = detail
	return r
}

func (r *Reply) ExpenseCreated(d core.Date) *Reply {
	return r.Event("expense:created", map[string]int{"year": d.Year(), "month": d.Month()})
}

func (r *Reply) ExpenseDeleted(id string) *Reply {
	return r.Event("expense:deleted", map[string]string{"id": id})
}

func (r *Reply) ResetForm() *Reply { return r.Event("form:reset", nil) }

func (r *Reply) AnalysisUpdated() *Reply { return r.Event("analysis:updated", nil) }

// Toast shows a notification. Unknown levels display as info.
func (r *Reply) Toast(level Toast, msg string) *Reply {
	d, ok := toastDuration[level]
	if !ok {
		level, d = ToastInfo, toastDuration[ToastInfo]
	}
	return r.Event("show-notification", map[string]any{
		"type":     string(level),
		"message":  msg,
		"duration": d.Milliseconds(),
	})
}

func (r *Reply) HTML(fragment string) *Reply {
	r.html = fragment
	return r
}

func (r *Reply) Write(w http.ResponseWriter) {
	if len(r.events) > 0 {
		if b, err := json.Marshal(r.events); err == nil {
			w.Header().Set("HX-Trigger", string(b))
		}
	}
	if r.html != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(r.status)
	if r.html != "" {
		_, _ = w.Write([]byte(r.html))
	}
}
