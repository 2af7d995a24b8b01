package protocol

import (
	"errors"
	"fmt"
)

// Alpaca error numbers carried in the reply envelope.
const (
	ErrNumOK             = 0
	ErrNumNotImplemented = 0x400 // 1024
	ErrNumInvalidValue   = 0x401 // 1025
)

// Kind tags a domain error so the dispatcher can pick transport or envelope reporting.
type Kind int

const (
	// KindArgument: malformed or missing call parameter. Reported as HTTP 400.
	KindArgument Kind = iota + 1
	// KindRange: well-formed value outside the declared bounds. Reported in the envelope.
	KindRange
	// KindNotImplemented: valid operation that this instance does not support. Reported in the envelope.
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindRange:
		return "range"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "unknown"
	}
}

// Error is a typed domain error returned by device capabilities.
type Error struct {
	Kind    Kind
	Number  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ArgumentError reports a malformed or missing parameter.
func ArgumentError(format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Number: ErrNumInvalidValue, Message: fmt.Sprintf(format, args...)}
}

// RangeError reports a value outside its declared bounds.
func RangeError(format string, args ...any) *Error {
	return &Error{Kind: KindRange, Number: ErrNumInvalidValue, Message: fmt.Sprintf(format, args...)}
}

// NotImplementedError reports an operation the device cannot perform.
func NotImplementedError(format string, args ...any) *Error {
	return &Error{Kind: KindNotImplemented, Number: ErrNumNotImplemented, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a domain error from err.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// TransportError is reported at the HTTP status layer: status 400 with a plain-text body.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// NewTransportError builds a TransportError.
func NewTransportError(format string, args ...any) *TransportError {
	return &TransportError{Message: fmt.Sprintf(format, args...)}
}

// AsTransportError extracts a transport error from err.
func AsTransportError(err error) (*TransportError, bool) {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr, true
	}
	return nil, false
}
