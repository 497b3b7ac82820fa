// ABOUTME: Error taxonomy for cvetrack runs.
// ABOUTME: Each failure carries a stable numeric code that the CLI maps to a process exit status.

package types

import (
	"errors"
	"fmt"
)

// Code identifies a class of run failure. The values are stable across releases.
type Code int

const (
	CodeNotFound    Code = -1 // Required resource does not exist
	CodeMalformed   Code = -2 // Resource exists but cannot be decoded
	CodeNoData      Code = -3 // Scan report has no packages
	CodeUnknownKind Code = -4 // Store was asked for a resource kind it does not know
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeMalformed:
		return "malformed"
	case CodeNoData:
		return "no_data"
	case CodeUnknownKind:
		return "unknown_kind"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// ExitStatus is the process exit status for the code (the code as an unsigned byte)
func (c Code) ExitStatus() int {
	return int(uint8(c))
}

// Error is a classified run failure
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error without an underlying cause
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code carried by err, if any
func CodeOf(err error) (Code, bool) {
	var runErr *Error
	if errors.As(err, &runErr) {
		return runErr.Code, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeNotFound
}

func IsMalformed(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeMalformed
}

func IsNoData(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeNoData
}
