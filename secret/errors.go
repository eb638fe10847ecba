package secret

import (
	"errors"
	"fmt"

	"github.com/benaskins/secretkit/native"
)

var (
	// ErrInvalidSchema is returned when a schema cannot be constructed.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrSchemaMismatch is returned when attributes do not fit the schema
	// they are used with. No native call is made.
	ErrSchemaMismatch = errors.New("attributes do not match schema")

	// ErrDecode is returned when the service hands back a payload of an
	// unexpected shape.
	ErrDecode = errors.New("malformed service result")

	// ErrOperationsInFlight is returned by Close while operations are still
	// awaiting completion.
	ErrOperationsInFlight = errors.New("operations still in flight")
)

// ErrorCode classifies a failure reported by the secret service.
type ErrorCode int

const (
	Failed ErrorCode = iota
	Protocol
	Locked
	NotFound
	AlreadyExists
	InvalidArgs
	Cancelled
	PermissionDenied
	Unavailable
)

func (c ErrorCode) String() string {
	switch c {
	case Failed:
		return "failed"
	case Protocol:
		return "protocol"
	case Locked:
		return "locked"
	case NotFound:
		return "not-found"
	case AlreadyExists:
		return "already-exists"
	case InvalidArgs:
		return "invalid-args"
	case Cancelled:
		return "cancelled"
	case PermissionDenied:
		return "permission-denied"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// ServiceError is a failure reported by the secret service.
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("secret service: %s: %s", e.Code, e.Message)
}

// Is matches another ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

// IsNotFound reports whether err is a service not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, &ServiceError{Code: NotFound})
}

var nativeCodes = map[native.ErrorCode]ErrorCode{
	native.ErrorFailed:           Failed,
	native.ErrorProtocol:         Protocol,
	native.ErrorIsLocked:         Locked,
	native.ErrorNoSuchObject:     NotFound,
	native.ErrorAlreadyExists:    AlreadyExists,
	native.ErrorInvalidArgs:      InvalidArgs,
	native.ErrorCancelled:        Cancelled,
	native.ErrorPermissionDenied: PermissionDenied,
	native.ErrorUnavailable:      Unavailable,
}

// serviceError converts a native failure into a ServiceError.
func serviceError(err error) error {
	var nerr *native.Error
	if !errors.As(err, &nerr) {
		return &ServiceError{Code: Failed, Message: err.Error()}
	}
	code, ok := nativeCodes[nerr.Code]
	if !ok {
		code = Failed
	}
	return &ServiceError{Code: code, Message: nerr.Message}
}
