package errs

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// Code classifies an error. Codes are strings so they can travel over the
// RPC wire unchanged (see common.Message.ErrCode).
type Code string

const (
	Internal            Code = "INTERNAL"              // unexpected failure
	Validation          Code = "VALIDATION"            // malformed parameters or documents
	Auth                Code = "AUTH"                  // missing/insufficient scope or invalid token
	NotReady            Code = "NOT_READY"             // config store initial load incomplete
	Conflict            Code = "CONFLICT"              // optimistic concurrency failure, retryable
	NotFound            Code = "NOT_FOUND"             // referenced entity absent
	ResourceLimit       Code = "RESOURCE_LIMIT"        // tenant count cap exceeded
	ExternalDependency  Code = "EXTERNAL_DEPENDENCY"   // license server unreachable or refused
	FatalPartialFailure Code = "FATAL_PARTIAL_FAILURE" // post-commit saga step failed
	Unsupported         Code = "UNSUPPORTED"           // operation not supported by the db engine
	InvalidOperation    Code = "INVALID_OPERATION"     // malformed command reached the state machine
)

// ParseCode converts the wire representation back into a Code.
// Unknown strings map to Internal.
func ParseCode(s string) Code {
	switch c := Code(strings.ToUpper(strings.TrimSpace(s))); c {
	case Validation, Auth, NotReady, Conflict, NotFound, ResourceLimit,
		ExternalDependency, FatalPartialFailure, Unsupported, InvalidOperation, Internal:
		return c
	default:
		return Internal
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the error type used across dCtl. It carries a Code, the operation
// that failed (e.g. "confstore.MakeChanges"), a human-readable message and an
// optional wrapped cause.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Op != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Op)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare code marker (see the Err* variables)
// with the same code as e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Code == e.Code
}

// Markers for errors.Is checks, e.g. errors.Is(err, errs.ErrConflict)
var (
	ErrValidation          = &Error{Code: Validation}
	ErrAuth                = &Error{Code: Auth}
	ErrNotReady            = &Error{Code: NotReady}
	ErrConflict            = &Error{Code: Conflict}
	ErrNotFound            = &Error{Code: NotFound}
	ErrResourceLimit       = &Error{Code: ResourceLimit}
	ErrExternalDependency  = &Error{Code: ExternalDependency}
	ErrFatalPartialFailure = &Error{Code: FatalPartialFailure}
)

// --------------------------------------------------------------------------
// Constructors and Helpers
// --------------------------------------------------------------------------

// New creates an error with a formatted message.
func New(code Code, op string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code. A nil err yields nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, Internal for
// foreign errors and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// MessageOf returns the message without the code prefix. Used when
// the code travels separately (rpc responses).
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		msg := e.Msg
		if e.Op != "" {
			if msg == "" {
				msg = e.Op
			} else {
				msg = e.Op + ": " + msg
			}
		}
		if e.Err != nil {
			if msg == "" {
				return e.Err.Error()
			}
			return msg + ": " + e.Err.Error()
		}
		return msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsRetryable reports whether the caller may recompute and resubmit.
func IsRetryable(err error) bool {
	return CodeOf(err) == Conflict
}
