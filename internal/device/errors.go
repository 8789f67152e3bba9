package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the closed set of device protocol errors.
type ErrorCode int

const (
	CodeGeneral ErrorCode = iota
	CodeNotSupported
	CodeNotOpen
	CodeAlreadyOpen
	CodeBusy
	CodeProto
	CodeDataInvalid
	CodeDataNotFound
	CodeDataFull
)

func (c ErrorCode) String() string {
	switch c {
	case CodeGeneral:
		return "GENERAL"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodeNotOpen:
		return "NOT_OPEN"
	case CodeAlreadyOpen:
		return "ALREADY_OPEN"
	case CodeBusy:
		return "BUSY"
	case CodeProto:
		return "PROTO"
	case CodeDataInvalid:
		return "DATA_INVALID"
	case CodeDataNotFound:
		return "DATA_NOT_FOUND"
	case CodeDataFull:
		return "DATA_FULL"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

func (c ErrorCode) defaultMessage() string {
	switch c {
	case CodeNotSupported:
		return "The operation is not supported on this device!"
	case CodeNotOpen:
		return "The device needs to be opened first!"
	case CodeAlreadyOpen:
		return "The device has already been opened!"
	case CodeBusy:
		return "The device is still busy with another operation, please try again later."
	case CodeProto:
		return "The driver encountered a protocol error with the device."
	case CodeDataInvalid:
		return "Passed (print) data is not valid."
	case CodeDataNotFound:
		return "Print was not found on the devices storage."
	case CodeDataFull:
		return "On device storage space is full."
	default:
		return "An unspecified error occurred!"
	}
}

// Error is a device protocol error. Errors compare equal under errors.Is
// when their codes match.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.defaultMessage()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same code and a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrGeneral      = &Error{Code: CodeGeneral}
	ErrNotSupported = &Error{Code: CodeNotSupported}
	ErrNotOpen      = &Error{Code: CodeNotOpen}
	ErrAlreadyOpen  = &Error{Code: CodeAlreadyOpen}
	ErrBusy         = &Error{Code: CodeBusy}
	ErrProto        = &Error{Code: CodeProto}
	ErrDataInvalid  = &Error{Code: CodeDataInvalid}
	ErrDataNotFound = &Error{Code: CodeDataNotFound}
	ErrDataFull     = &Error{Code: CodeDataFull}
)

// RetryCode is the closed set of scan quality problems.
type RetryCode int

const (
	RetryGeneral RetryCode = iota
	RetryTooShort
	RetryCenterFinger
	RetryRemoveFinger
)

func (c RetryCode) String() string {
	switch c {
	case RetryGeneral:
		return "GENERAL"
	case RetryTooShort:
		return "TOO_SHORT"
	case RetryCenterFinger:
		return "CENTER_FINGER"
	case RetryRemoveFinger:
		return "REMOVE_FINGER"
	}
	return fmt.Sprintf("RetryCode(%d)", int(c))
}

func (c RetryCode) defaultMessage() string {
	switch c {
	case RetryTooShort:
		return "The swipe was too short, please try again."
	case RetryCenterFinger:
		return "The finger was not centered properly, please try again."
	case RetryRemoveFinger:
		return "Please try again after removing the finger first."
	default:
		return "Please try again."
	}
}

// RetryError reports a scan that should be repeated. It is not fatal
// during enrollment.
type RetryError struct {
	Code    RetryCode
	Message string
}

func (e *RetryError) Error() string {
	if e.Message == "" {
		return e.Code.defaultMessage()
	}
	return e.Message
}

func (e *RetryError) Is(target error) bool {
	t, ok := target.(*RetryError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new RetryError with the same code and a specific
// message.
func (e *RetryError) WithMessage(msg string) *RetryError {
	return &RetryError{Code: e.Code, Message: msg}
}

var (
	ErrRetry             = &RetryError{Code: RetryGeneral}
	ErrRetryTooShort     = &RetryError{Code: RetryTooShort}
	ErrRetryCenterFinger = &RetryError{Code: RetryCenterFinger}
	ErrRetryRemoveFinger = &RetryError{Code: RetryRemoveFinger}
)

// AsRetry returns the RetryError in err's chain, if any.
func AsRetry(err error) (*RetryError, bool) {
	var r *RetryError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsCancelled reports whether err is the result of a cancelled action.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
