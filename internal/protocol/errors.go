// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode classifies protocol failures for callers and API responses.
type ErrorCode string

const (
	CodeIO       ErrorCode = "io_error"
	CodeTimeout  ErrorCode = "timeout"
	CodeChecksum ErrorCode = "checksum_mismatch"
	CodeLength   ErrorCode = "length_mismatch"
	CodeProtocol ErrorCode = "protocol_error"
	CodeNotReady ErrorCode = "not_ready"
)

// Sentinels for errors.Is comparisons. Any *Error with the same code matches.
var (
	ErrIO       = &Error{Code: CodeIO}
	ErrTimeout  = &Error{Code: CodeTimeout}
	ErrChecksum = &Error{Code: CodeChecksum}
	ErrLength   = &Error{Code: CodeLength}
	ErrProtocol = &Error{Code: CodeProtocol}
	ErrNotReady = &Error{Code: CodeNotReady}
)

// Error is a typed protocol error.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, op string, err error) error {
	return &Error{Code: code, Op: op, Err: err}
}

// IOError wraps an underlying I/O failure.
func IOError(op string, err error) error { return newError(CodeIO, op, err) }

// TimeoutError reports an expired read deadline.
func TimeoutError(op string, got, want int) error {
	return newError(CodeTimeout, op, fmt.Errorf("received %d of %d bytes", got, want))
}

// ChecksumError wraps a trailer mismatch.
func ChecksumError(op string, err error) error { return newError(CodeChecksum, op, err) }

// LengthError reports a block or frame of unexpected size.
func LengthError(op string, got, want int) error {
	return newError(CodeLength, op, fmt.Errorf("got %d bytes, want %d", got, want))
}

// ProtocolErrorf reports an unexpected device answer.
func ProtocolErrorf(op, format string, args ...any) error {
	return newError(CodeProtocol, op, fmt.Errorf(format, args...))
}

// NotReadyError reports an exhausted readiness check.
func NotReadyError(op string, attempts int) error {
	return newError(CodeNotReady, op, fmt.Errorf("device not ready after %d attempts", attempts))
}

// CodeOf returns the code of the first *Error in err's chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsTimeout reports whether err is a protocol timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
