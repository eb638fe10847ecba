package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/benaskins/secretkit/vault"
)

// ErrorDomain identifies errors raised by the native service.
const ErrorDomain = "secret-error"

// ErrorCode classifies a native failure.
type ErrorCode int

const (
	ErrorFailed ErrorCode = iota
	ErrorProtocol
	ErrorIsLocked
	ErrorNoSuchObject
	ErrorAlreadyExists
	ErrorInvalidArgs
	ErrorCancelled
	ErrorPermissionDenied
	ErrorUnavailable
)

var errorCodeNames = map[ErrorCode]string{
	ErrorFailed:           "failed",
	ErrorProtocol:         "protocol",
	ErrorIsLocked:         "is-locked",
	ErrorNoSuchObject:     "no-such-object",
	ErrorAlreadyExists:    "already-exists",
	ErrorInvalidArgs:      "invalid-args",
	ErrorCancelled:        "cancelled",
	ErrorPermissionDenied: "permission-denied",
	ErrorUnavailable:      "unavailable",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error(%d)", int(c))
}

// Error is a failure reported by the native service.
type Error struct {
	Domain  string
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Domain, e.Message, e.Code)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Domain: ErrorDomain, Code: code, Message: fmt.Sprintf(format, args...)}
}

// fromStore converts a storage failure into a native error.
func fromStore(err error) *Error {
	var nerr *Error
	switch {
	case errors.As(err, &nerr):
		return nerr
	case errors.Is(err, vault.ErrNotFound):
		return newError(ErrorNoSuchObject, "%v", err)
	case errors.Is(err, vault.ErrLocked):
		return newError(ErrorIsLocked, "%v", err)
	case errors.Is(err, vault.ErrUnavailable):
		return newError(ErrorUnavailable, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorCancelled, "%v", err)
	case errors.Is(err, ErrDangling):
		return newError(ErrorInvalidArgs, "%v", err)
	default:
		return newError(ErrorFailed, "%v", err)
	}
}
