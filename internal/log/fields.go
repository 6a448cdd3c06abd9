package log

// Common field names for structured logging
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
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldAccountID     = "account_id"
	FieldSlotID        = "slot_id"
	FieldFromSlotID    = "from_slot_id"
	FieldToSlotID      = "to_slot_id"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldBalance       = "balance"
	FieldVersion       = "version"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTransfer  = "transfer"
	ComponentQuery     = "query"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentFeed      = "feed"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpLink       = "link"
	OpBalance    = "balance"
	OpIngest     = "ingest"
	OpCommit     = "commit"
	OpCreate     = "create"
	OpDelete     = "delete"
	OpReallocate = "reallocate"
	OpReassign   = "reassign"
	OpSplit      = "split"
	OpRead       = "read"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeUnavailable = "unavailable_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeConflict    = "conflict_error"
	ErrorTypeInternal    = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAccount adds the account id
func (f LogFields) WithAccount(accountID int64) LogFields {
	f[FieldAccountID] = accountID
	return f
}

// WithSlot adds the slot id
func (f LogFields) WithSlot(slotID int64) LogFields {
	f[FieldSlotID] = slotID
	return f
}

// WithTransfer adds the endpoints and amount of a slot-to-slot move
func (f LogFields) WithTransfer(from, to, amount int64) LogFields {
	f[FieldFromSlotID] = from
	f[FieldToSlotID] = to
	f[FieldAmount] = amount
	return f
}

// WithTransaction adds the feed transaction id
func (f LogFields) WithTransaction(txID string) LogFields {
	f[FieldTransactionID] = txID
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
