// Package ecerr collects the error taxonomy every service in this module
// reports through: a comparable string Code plus an optional wrapping E
// that keeps the failing operation and an underlying cause.
package ecerr

import (
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/x/fmtx"
)

// Code is a stable, caller-facing error identifier. It is a string
// newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. Names follow spec §7's taxonomy, not the teacher's
// HAL-capability vocabulary.
const (
	NodeAlreadyInList      Code = "node_already_in_list"
	InvalidState           Code = "invalid_state"
	InvalidActionInState   Code = "invalid_action_in_state"
	DeviceTimeout          Code = "device_timeout"
	DeviceError            Code = "device_error"
	CannotProvide          Code = "cannot_provide"
	CannotConsume          Code = "cannot_consume"
	InvalidComponent       Code = "invalid_component"
	InvalidLocation        Code = "invalid_location"
	InvalidRegisterAddress Code = "invalid_register_address"
	InvalidData            Code = "invalid_data"
	ContextTimeout         Code = "context_timeout"
	Busy                   Code = "busy"

	Unknown Code = "unknown" // generic fallback
)

// E wraps a Code with the failing operation, a message, and an optional
// cause, the same shape the teacher's errcode.E used.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := e.Op + ": " + string(e.C)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap builds an *E for op, tagging it with code and an optional cause.
func Wrap(op string, code Code, err error) *E {
	return &E{C: code, Op: op, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(op string, code Code, err error, format string, args ...any) *E {
	return &E{C: code, Op: op, Msg: fmtx.Sprintf(format, args...), Err: err}
}

// Of extracts a Code from an error, defaulting to Unknown.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Unknown
}

// Is reports whether err carries code, either directly or wrapped in an *E.
func Is(err error, code Code) bool {
	return Of(err) == code
}

// Fatalf reports a programmer-contract violation (double-borrow,
// duplicate intrusive registration where the design calls for a panic)
// and panics. This is the one call site to audit for "what panics."
func Fatalf(tag, format string, args ...any) {
	msg := fmtx.Sprintf(format, args...)
	xlog.Errorf(tag, "%s", msg)
	panic(msg)
}
