package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete implementation behind Error. Values are immutable;
// every derivation allocates a new value so templates declared at package
// scope stay untouched.
type appError struct {
	msg        string
	base       error
	wrapped    []error
	statuscode int
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by every wrapped error, separated
// by "; ".
func (e *appError) ErrorAll() string {
	if len(e.wrapped) == 0 {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrapped {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

// New derives a fresh error using the current error as template. The derived
// error keeps the status code and matches the template via errors.Is, but
// does not carry the template's wrapped errors.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

// Msg derives an error with a new message, wrapping the original so the
// full chain is preserved in ErrorAll.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statuscode: e.statuscode,
	}
}

// MsgErr derives an error with a new message and wraps the given errors in
// addition to the original.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	wrapped := append([]error{e}, e.wrapped...)
	wrapped = append(wrapped, errs...)
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    wrapped,
		statuscode: e.statuscode,
	}
}

// Err derives an error carrying the same message with the given errors
// attached.
func (e *appError) Err(errs ...error) Error {
	wrapped := make([]error, 0, len(e.wrapped)+len(errs))
	wrapped = append(wrapped, e.wrapped...)
	wrapped = append(wrapped, errs...)
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    wrapped,
		statuscode: e.statuscode,
	}
}

func (e *appError) SetStatusCode(code int) Error {
	n := *e
	n.statuscode = code
	return &n
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

// IsAny reports whether err matches any of the given targets.
func IsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
