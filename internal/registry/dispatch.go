package registry

import (
	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/rpc"
)

// ErrorToRPC maps an engine-domain EngineError to its JSON-RPC application
// error code for ApplicationFailure responses. Each kind has one code;
// ErrVoxelNotFound and ErrOperationFailed share -32005.
func ErrorToRPC(e *domain.EngineError) *rpc.Error {
	code := rpc.CodeInternal
	switch e.Kind {
	case domain.ErrInvalidParams:
		code = rpc.CodeInvalidParams
	case domain.ErrProjectNotFound:
		code = rpc.CodeProjectNotFound
	case domain.ErrInvalidCoordinates:
		code = rpc.CodeInvalidCoordinates
	case domain.ErrLayerNotFound:
		code = rpc.CodeLayerNotFound
	case domain.ErrVoxelNotFound:
		code = rpc.CodeOperationFailed
	case domain.ErrUnsupportedFormat:
		code = rpc.CodeUnsupportedFormat
	case domain.ErrOperationFailed:
		code = rpc.CodeOperationFailed
	case domain.ErrResourceExhausted:
		code = rpc.CodeResourceExhausted
	case domain.ErrPermissionDenied:
		code = rpc.CodePermissionDenied
	case domain.ErrIoError:
		code = rpc.CodeIoError
	case domain.ErrFormatError:
		code = rpc.CodeFormatError
	case domain.ErrCancelled:
		code = rpc.CodeCancelled
	case domain.ErrDeadlineExceeded:
		code = rpc.CodeDeadlineExceeded
	case domain.ErrScriptError:
		code = rpc.CodeScriptError
	case domain.ErrInternal:
		code = rpc.CodeInternal
	}
	return &rpc.Error{Code: code, Message: e.Message, Data: e.Data}
}
