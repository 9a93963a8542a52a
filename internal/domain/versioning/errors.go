package versioning

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes versioning failure semantics across services.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodeUnresolvedConflict ErrorCode = "unresolved_conflict"
	CodeSerialization      ErrorCode = "serialization"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

// Error is the canonical versioning error wrapper. Paths carries the
// offending document paths for unresolved_conflict so callers can report
// exactly which conflicts still need a decision.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Paths   []string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	if len(e.Paths) > 0 {
		if msg != "" {
			msg += " "
		}
		msg += "[" + strings.Join(e.Paths, ", ") + "]"
	}
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a versioning error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// NewConflictError builds an unresolved_conflict error carrying the paths
// that still lack a resolution.
func NewConflictError(op, message string, paths []string) error {
	return &Error{
		Code:    CodeUnresolvedConflict,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Paths:   append([]string(nil), paths...),
	}
}

// Wrap annotates an existing error with versioning error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var verr *Error
	if !errors.As(err, &verr) {
		return false
	}
	return verr.Code == code
}

// CodeOf extracts the versioning error code when available.
func CodeOf(err error) ErrorCode {
	var verr *Error
	if !errors.As(err, &verr) {
		return ""
	}
	return verr.Code
}

// PathsOf extracts the conflicting paths from an unresolved_conflict error.
func PathsOf(err error) []string {
	var verr *Error
	if !errors.As(err, &verr) {
		return nil
	}
	return verr.Paths
}
