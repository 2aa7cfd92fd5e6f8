// Package derrors carries error codes across layer boundaries so transport
// code can map failures to protocol result codes without string matching.
package derrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limited"
	CodeInternal     Code = "internal"
)

type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Code() Code { return e.code }

// New creates a coded error with no underlying cause.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Wrap attaches a code and message to an underlying error.
// A nil err returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// CodeOf extracts the code from err, walking the chain.
// Uncoded errors report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
