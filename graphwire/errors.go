package graphwire

import "fmt"

// ErrorKind classifies a driver error. Every error surfaced by this package
// is an *Error carrying exactly one kind; callers dispatch with errors.Is
// against the exported sentinels.
type ErrorKind int

const (
	// ErrorDefect marks input or internal state the client code should never
	// produce (an unsupported value, an unrecognised variant). Fatal to the
	// call, never retried.
	ErrorDefect ErrorKind = iota
	// ErrorChannelClosed marks an operation on a transaction or session that
	// is no longer usable, whether closed explicitly or lost to a transport
	// failure.
	ErrorChannelClosed
	// ErrorIteratorInvalid marks a pull on an iterator whose owning
	// transaction closed before the iterator was exhausted.
	ErrorIteratorInvalid
	// ErrorServerRejected marks a semantic failure reported by the server,
	// carrying the server-supplied detail verbatim.
	ErrorServerRejected
	// ErrorTransport marks a connection-level failure before a response was
	// obtained.
	ErrorTransport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorDefect:
		return "Defect"
	case ErrorChannelClosed:
		return "ChannelClosed"
	case ErrorIteratorInvalid:
		return "IteratorInvalid"
	case ErrorServerRejected:
		return "ServerRejected"
	case ErrorTransport:
		return "TransportError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for use with errors.Is. Each matches any *Error of the same kind.
var (
	ErrDefect          = &Error{Kind: ErrorDefect}
	ErrChannelClosed   = &Error{Kind: ErrorChannelClosed}
	ErrIteratorInvalid = &Error{Kind: ErrorIteratorInvalid}
	ErrServerRejected  = &Error{Kind: ErrorServerRejected}
	ErrTransport       = &Error{Kind: ErrorTransport}
)

// Error is the error type for the graphwire protocol.
type Error struct {
	Kind    ErrorKind
	Type    string // wire-level error type, e.g. "UnsupportedValue"
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is supports errors.Is by matching any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// errorTypeUnsupportedValue tags defects raised by the value codec and the
// concept reference encoder.
const errorTypeUnsupportedValue = "UnsupportedValue"

func defectf(errType, format string, args ...any) *Error {
	return &Error{Kind: ErrorDefect, Type: errType, Message: fmt.Sprintf(format, args...)}
}

func channelClosedf(cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrorChannelClosed, Message: fmt.Sprintf(format, args...), cause: cause}
}

func iteratorInvalidf(cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrorIteratorInvalid, Message: fmt.Sprintf(format, args...), cause: cause}
}

func rejectedf(errType, format string, args ...any) *Error {
	return &Error{Kind: ErrorServerRejected, Type: errType, Message: fmt.Sprintf(format, args...)}
}

func transportf(cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrorTransport, Message: fmt.Sprintf(format, args...), cause: cause}
}
