// Package domain defines the types shared between the engine facade, the
// engine guard, and the method registry: the EngineOp request envelope, the
// Scene's plain-value domain types, and the engine-domain error taxonomy.
package domain

import "fmt"

// ErrorKind enumerates the engine-domain failure categories from which the
// method registry derives a JSON-RPC application error code. Kinds are
// deliberately coarse; handlers classify a failure once at the point it
// occurs and never construct a raw JSON-RPC error themselves.
type ErrorKind int

const (
	ErrInternal ErrorKind = iota
	ErrInvalidParams
	ErrProjectNotFound
	ErrLayerNotFound
	ErrVoxelNotFound
	ErrInvalidCoordinates
	ErrUnsupportedFormat
	ErrOperationFailed
	ErrResourceExhausted
	ErrPermissionDenied
	ErrIoError
	ErrFormatError
	ErrCancelled
	ErrDeadlineExceeded
	ErrScriptError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInternal:
		return "internal"
	case ErrInvalidParams:
		return "invalid_params"
	case ErrProjectNotFound:
		return "project_not_found"
	case ErrLayerNotFound:
		return "layer_not_found"
	case ErrVoxelNotFound:
		return "voxel_not_found"
	case ErrInvalidCoordinates:
		return "invalid_coordinates"
	case ErrUnsupportedFormat:
		return "unsupported_format"
	case ErrOperationFailed:
		return "operation_failed"
	case ErrResourceExhausted:
		return "resource_exhausted"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrIoError:
		return "io_error"
	case ErrFormatError:
		return "format_error"
	case ErrCancelled:
		return "cancelled"
	case ErrDeadlineExceeded:
		return "deadline_exceeded"
	case ErrScriptError:
		return "script_error"
	default:
		return "unknown"
	}
}

// EngineError is the only error type the Engine Facade and Engine Guard are
// permitted to return. Codecs and handlers map it to a JSON-RPC error
// deterministically via Kind; Data carries machine-readable detail (e.g. the
// offending parameter name) and is optional.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Data    any
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewEngineError constructs an EngineError with no machine-readable detail.
func NewEngineError(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewEngineErrorData constructs an EngineError carrying a Data payload, used
// for InvalidParams responses that must name the offending field.
func NewEngineErrorData(kind ErrorKind, data any, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...), Data: data}
}

// AsEngineError unwraps err into an *EngineError, wrapping it as Internal if
// it is not already one. Used at the Engine Guard boundary so that a panic
// recovered from facade code, or a plain error bubbling out of an io.Writer,
// always reaches the dispatcher as a typed failure.
func AsEngineError(err error) *EngineError {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EngineError); ok {
		return ee
	}
	return &EngineError{Kind: ErrInternal, Message: err.Error()}
}
