// Package domainerrors provides coded domain errors for covault.
//
// Services and the engine return these so transports can translate outcomes
// without string matching. Infrastructure failures get wrapped with
// CodeInternal at the layer that observes them.
//
// Every precondition violation is a recoverable, typed rejection. There is no
// crash/fatal category.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of domain failure.
type Code string

const (
	// Engine rejections. Each maps to exactly one precondition of the
	// quorum-gated lifecycle.
	CodeUnauthorized     Code = "unauthorized"      // caller is not a current member
	CodeNoSuchEntry      Code = "no_such_entry"     // ledger index out of range
	CodeAlreadyExecuted  Code = "already_executed"  // entry is terminal
	CodeAlreadyConfirmed Code = "already_confirmed" // principal already confirmed the entry
	CodeNotConfirmed     Code = "not_confirmed"     // principal has no confirmation to revoke
	CodeQuorumNotMet     Code = "quorum_not_met"    // confirmations below current quorum
	CodeQuorumUnsafe     Code = "quorum_unsafe"     // removal would leave quorum unsatisfiable
	CodeInvalidQuorum    Code = "invalid_quorum"    // threshold outside 1..len(members)
	CodeDuplicateMember  Code = "duplicate_member"  // principal already registered
	CodeUnknownMember    Code = "unknown_member"    // principal not registered
	CodeInvalidPrincipal Code = "invalid_principal" // zero or malformed identity
	CodeExecutionFailed  Code = "execution_failed"  // external executor reported failure

	// Ambient codes shared with transport and platform layers.
	CodeBadRequest Code = "bad_request"
	CodeForbidden  Code = "forbidden"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeInternal   Code = "internal"
)

// Error is a domain error carrying a machine-readable code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode that reads naturally at call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from a domain error, or CodeInternal for anything
// that is not one. Useful at transport boundaries.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
