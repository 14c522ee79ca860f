package log

// Shared attribute keys.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldOperation   = "operation"
	FieldStudentID   = "student_id"
	FieldRef         = "transaction_ref"
	FieldAmountCents = "amount_cents"
	FieldBalance     = "balance_cents"
	FieldStatus      = "status"
)

// Component names, one per binary or subsystem.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentReconcile = "reconcile"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// OpPay tags log lines for accepted payments.
const OpPay = "pay"

// LogFields collects key/value pairs in insertion order for slog.
type LogFields struct {
	args []any
}

func NewFields() *LogFields {
	return &LogFields{}
}

func (f *LogFields) add(key string, value any) *LogFields {
	f.args = append(f.args, key, value)
	return f
}

func (f *LogFields) WithClientIP(ip string) *LogFields {
	if ip == "" {
		return f
	}
	return f.add(FieldClientIP, ip)
}

func (f *LogFields) WithOperation(op string) *LogFields {
	return f.add(FieldOperation, op)
}

// WithPayment identifies a payment by student and external reference.
func (f *LogFields) WithPayment(studentID, ref string, amountCents int64) *LogFields {
	f.add(FieldStudentID, studentID)
	if ref != "" {
		f.add(FieldRef, ref)
	}
	return f.add(FieldAmountCents, amountCents)
}

// WithBalance adds the resulting balance and its derived status.
func (f *LogFields) WithBalance(balanceCents int64, status string) *LogFields {
	return f.add(FieldBalance, balanceCents).add(FieldStatus, status)
}

func (f *LogFields) WithHTTPRequest(method, path, query, userAgent string) *LogFields {
	f.add(FieldMethod, method).add(FieldPath, path)
	if query != "" {
		f.add(FieldQuery, query)
	}
	if userAgent != "" {
		f.add(FieldUserAgent, userAgent)
	}
	return f
}

func (f *LogFields) WithHTTPResponse(statusCode int, durationMs int64) *LogFields {
	return f.add(FieldStatusCode, statusCode).add(FieldDuration, durationMs)
}

// ToSlice returns the pairs ready for slog's variadic args.
func (f *LogFields) ToSlice() []any {
	return f.args
}
