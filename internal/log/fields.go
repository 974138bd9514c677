package log

// Common field names for structured logging.
const (
	FieldComponent = "component"
	FieldNamespace = "namespace"
	FieldAccount   = "account"
	FieldTxnID     = "txn_id"
	FieldKind      = "kind"
	FieldAmount    = "amount"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Components defines standard component names.
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentReport  = "report"
	ComponentService = "service"
	ComponentStore   = "store"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names.
const (
	OpApply    = "apply"
	OpReverse  = "reverse"
	OpRename   = "rename"
	OpDelete   = "delete"
	OpReport   = "report"
	OpVerify   = "verify"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
