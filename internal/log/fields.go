package log

import "log/slog"

// Attribute keys shared by every package.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldExpenseID     = "expense_id"
	FieldExpenseTitle  = "expense_title"
	FieldAmount        = "amount"
	FieldCategory      = "category"
	FieldOccurredOn    = "occurred_on"
	FieldFileName      = "file_name"
	FieldAnalysisState = "analysis_status"
	FieldOnline        = "online"
)

const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentExpense      = "expense"
	ComponentAnalysis     = "analysis"
	ComponentAppState     = "appstate"
	ComponentConnectivity = "connectivity"
	ComponentOpenAI       = "openai"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentCache        = "cache"
	ComponentSecurity     = "security"
	ComponentRateLimit    = "rate_limit"
	ComponentTrace        = "trace"
	ComponentBackend      = "backend"
	ComponentTemplate     = "template"
	ComponentCLI          = "cli"
)

const (
	OpCreate   = "create"
	OpDelete   = "delete"
	OpList     = "list"
	OpAnalyze  = "analyze"
	OpEnqueue  = "enqueue"
	OpDrain    = "drain"
	OpExport   = "export"
	OpValidate = "validate"
	OpParse    = "parse"
	OpRender   = "render"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields accumulates attributes for one record.
type LogFields []slog.Attr

func NewFields() LogFields { return nil }

func (f LogFields) WithOperation(op string) LogFields {
	return append(f, slog.String(FieldOperation, op))
}

// WithError is a no-op for a nil err.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return append(f, slog.String(FieldError, err.Error()))
}

// WithExpense adds the non-empty expense attributes.
func (f LogFields) WithExpense(id, title, amount, category, occurredOn string) LogFields {
	for _, kv := range [][2]string{
		{FieldExpenseID, id},
		{FieldExpenseTitle, title},
		{FieldAmount, amount},
		{FieldCategory, category},
		{FieldOccurredOn, occurredOn},
	} {
		if kv[1] != "" {
			f = append(f, slog.String(kv[0], kv[1]))
		}
	}
	return f
}
