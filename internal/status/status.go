package status

import (
	"fmt"
	"net/http"
)

// Code classifies failures the way upstream RPC services report them, so
// vault and provider errors can be passed through to callers verbatim.
type Code int

const (
	OK Code = iota
	InvalidArgument
	NotFound
	AlreadyExists
	PermissionDenied
	Unauthenticated
	FailedPrecondition
	Unimplemented
	Internal
	Unavailable
	DeadlineExceeded
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Unimplemented:
		return "UNIMPLEMENTED"
	case Internal:
		return "INTERNAL"
	case Unavailable:
		return "UNAVAILABLE"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// HTTPStatus maps the code onto the HTTP status used by the REST surface.
func (c Code) HTTPStatus() int {
	switch c {
	case OK:
		return http.StatusOK
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case PermissionDenied:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	case FailedPrecondition:
		return http.StatusPreconditionFailed
	case Unimplemented:
		return http.StatusNotImplemented
	case Unavailable:
		return http.StatusServiceUnavailable
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// FromHTTPStatus converts an upstream HTTP status into the closest code.
func FromHTTPStatus(httpStatus int) Code {
	switch {
	case httpStatus >= 200 && httpStatus < 300:
		return OK
	case httpStatus == http.StatusBadRequest:
		return InvalidArgument
	case httpStatus == http.StatusUnauthorized:
		return Unauthenticated
	case httpStatus == http.StatusForbidden:
		return PermissionDenied
	case httpStatus == http.StatusNotFound:
		return NotFound
	case httpStatus == http.StatusConflict:
		return AlreadyExists
	case httpStatus == http.StatusPreconditionFailed:
		return FailedPrecondition
	case httpStatus == http.StatusNotImplemented:
		return Unimplemented
	case httpStatus == http.StatusServiceUnavailable:
		return Unavailable
	case httpStatus == http.StatusGatewayTimeout:
		return DeadlineExceeded
	}
	return Internal
}

// Error is the single error currency above the adapter layer.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a status error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a status error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
