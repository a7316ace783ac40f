package graphwire

// Well-known metadata keys used in the graphwire protocol. These appear as
// custom_metadata on Arrow IPC RecordBatch messages.
const (
	MetaMethod         = "graphwire.method"
	MetaRequestVersion = "graphwire.request_version"
	MetaRequestID      = "graphwire.request_id"
	MetaLogLevel       = "graphwire.log_level"
	MetaLogMessage     = "graphwire.log_message"
	MetaLogExtra       = "graphwire.log_extra"
	MetaErrorType      = "graphwire.error_type"
	MetaContinue       = "graphwire.continue"
	MetaDone           = "graphwire.done"

	ProtocolVersion = "1"
)

// Tracing metadata keys. Both are attached to a request when a trace context
// is active and complete; neither is ever sent with an empty value.
const (
	MetaTraceParentID = "traceParentId"
	MetaTraceRootID   = "traceRootId"
)
