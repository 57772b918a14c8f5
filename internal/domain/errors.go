package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeValidation ErrorCode = "validation"
	CodeNotFound   ErrorCode = "not_found"
	CodeConflict   ErrorCode = "conflict"
	CodeForbidden  ErrorCode = "forbidden"
	CodeInvariant  ErrorCode = "invariant_violation"
	CodeInternal   ErrorCode = "internal"
)

// Error is a business-rule or technical failure with a caller-facing message.
// Cause is kept for logging and never rendered by Error().
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors sharing code and message, so a wrapped copy of a sentinel
// still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause returns a copy of sentinel carrying cause.
func WithCause(sentinel *Error, cause error) error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Cause: cause}
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) ErrorCode {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return CodeValidation
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ""
}

var (
	ErrRoleNotFound        = NewError(CodeNotFound, "Project role not found")
	ErrProjectNotFound     = NewError(CodeNotFound, "Project not found")
	ErrApplicationNotFound = NewError(CodeNotFound, "Application not found")
	ErrProfileNotFound     = NewError(CodeNotFound, "Profile not found")

	ErrRoleAlreadyFilled      = NewError(CodeConflict, "This role is already filled")
	ErrPendingApplication     = NewError(CodeConflict, "you already have a pending application for this role")
	ErrRejectedApplication    = NewError(CodeConflict, "you already have a rejected application for this role")
	ErrConcurrentModification = NewError(CodeConflict, "Application was modified concurrently")

	ErrForeignFeatures = NewError(CodeValidation, "Some selected key features do not belong to this project")
	ErrForeignGoals    = NewError(CodeValidation, "Some selected project goals do not belong to this project")

	ErrSelfApplication = NewError(CodeForbidden, "You cannot apply to your own project")
	ErrNotProjectOwner = NewError(CodeForbidden, "User is not the owner of the project")
	ErrCannotCancel    = NewError(CodeForbidden, "You can only cancel your own pending applications")

	ErrNotPendingForApproval  = NewError(CodeInvariant, "Application must be pending to be approved")
	ErrNotPendingForRejection = NewError(CodeInvariant, "Application must be pending to be rejected")
	ErrNotPendingForCancel    = NewError(CodeInvariant, "Application must be pending to be cancelled")

	ErrCreateApplication = NewError(CodeInternal, "Unable to create application")
	ErrUpdateRole        = NewError(CodeInternal, "Unable to update project role")
	ErrUpdateApplication = NewError(CodeInternal, "Unable to update application")
	ErrCancelApplication = NewError(CodeInternal, "Failed to update application")
	ErrLoadApplications  = NewError(CodeInternal, "Unable to load applications")
)

// ValidationError reports malformed input keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}
