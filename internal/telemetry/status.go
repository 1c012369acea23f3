package telemetry

// Status mirrors the ABI-facing orpheus_status enum (spec §7). Every
// fallible operation inside the core returns (or wraps) one of these.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusNotFound
	StatusOutOfMemory
	StatusInternalError
	StatusNotImplemented
	StatusIoError
	// Transport/handle-specific statuses (spec §3, §4.7, §7).
	StatusInvalidHandle
	StatusClipNotRegistered
	StatusNotReady
	// StatusInvalidParameter is used specifically for malformed numeric
	// parameters (NaN/±Inf gain, out-of-range dB) per spec §4.7/§8; it is
	// not in the headline seven-member taxonomy of §7 but the spec's own
	// prose distinguishes it from a generic InvalidArgument, so it is
	// kept as a distinct value rather than collapsed into one.
	StatusInvalidParameter
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArgument:
		return "InvalidArgument"
	case StatusNotFound:
		return "NotFound"
	case StatusOutOfMemory:
		return "OutOfMemory"
	case StatusInternalError:
		return "InternalError"
	case StatusNotImplemented:
		return "NotImplemented"
	case StatusIoError:
		return "IoError"
	case StatusInvalidHandle:
		return "InvalidHandle"
	case StatusClipNotRegistered:
		return "ClipNotRegistered"
	case StatusNotReady:
		return "NotReady"
	case StatusInvalidParameter:
		return "InvalidParameter"
	default:
		return "Unknown"
	}
}

// Error is a status-tagged failure. The core returns *Error (or plain
// errors.Is-compatible wraps of one) instead of panicking; the ABI
// boundary (internal/abi) converts any *Error reaching it into the
// matching status code plus a WARN/ERROR telemetry line per spec §7.
type Error struct {
	Status  Status
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a status-tagged error with a plain message.
func New(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap builds a status-tagged error around an existing error.
func Wrap(status Status, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// Severity reports the log level the error taxonomy maps to per spec §7:
// WARN for validation failures, ERROR for I/O, internal, and OOM.
func (s Status) Severity() Level {
	switch s {
	case StatusInvalidArgument, StatusInvalidParameter, StatusInvalidHandle,
		StatusClipNotRegistered, StatusNotReady, StatusNotFound:
		return LevelWarn
	case StatusIoError, StatusInternalError, StatusOutOfMemory:
		return LevelError
	default:
		return LevelInfo
	}
}
