package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an Error for transport mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindIllegalTransition Kind = "illegal_transition"
	KindInvariant         Kind = "invariant_violation"
	KindCodeGeneration    Kind = "code_generation_failed"
	KindConflict          Kind = "conflict"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindLocked            Kind = "account_locked"
	KindDeadline          Kind = "deadline_exceeded"
	KindInternal          Kind = "internal"
)

// Invariant codes reported alongside KindInvariant.
const (
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeInsufficientAvailable = "INSUFFICIENT_AVAILABLE"
	CodeInsufficientReserved  = "INSUFFICIENT_RESERVED"
	CodeExceedsOutstanding    = "EXCEEDS_OUTSTANDING"
	CodeExceedsPending        = "EXCEEDS_PENDING"
	CodeExceedsReceived       = "EXCEEDS_RECEIVED"
	CodeNothingToConvert      = "NOTHING_TO_CONVERT"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrValidation matches any validation failure.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrIllegalTransition matches transition engine rejections.
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	// ErrInvariant matches invariant violations regardless of code.
	ErrInvariant = &Error{Kind: KindInvariant}
	// ErrConflict matches lost optimistic races and in-flight duplicates.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Code: "INVALID_CREDENTIALS"}
	// ErrAccountLocked indicates the lockout window is active.
	ErrAccountLocked = &Error{Kind: KindLocked}
	// ErrForbidden indicates missing permissions.
	ErrForbidden = &Error{Kind: KindForbidden}

	ErrInsufficientStock     = &Error{Kind: KindInvariant, Code: CodeInsufficientStock}
	ErrInsufficientAvailable = &Error{Kind: KindInvariant, Code: CodeInsufficientAvailable}
	ErrNothingToConvert      = &Error{Kind: KindInvariant, Code: CodeNothingToConvert}
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the application error carried from services to transports.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Fields    []FieldError
	Current   string
	Requested string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, and by code when the sentinel carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Validation reports a malformed request.
func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// NotFound reports a missing document.
func NotFound(entity, code string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, code)}
}

// IllegalTransition reports a status change the workflow does not allow.
func IllegalTransition(entity, current, requested, reason string) *Error {
	msg := fmt.Sprintf("%s cannot move from %s to %s", entity, current, requested)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{Kind: KindIllegalTransition, Message: msg, Current: current, Requested: requested}
}

// Invariant reports a quantity or amount rule breach.
func Invariant(code, msg string) *Error {
	return &Error{Kind: KindInvariant, Code: code, Message: msg}
}

// CodeGenerationFailed reports sequencer exhaustion.
func CodeGenerationFailed(kind string, err error) *Error {
	return &Error{Kind: KindCodeGeneration, Message: "could not allocate " + kind + " code", Retryable: true, Err: err}
}

// Conflict reports a lost race the caller may retry.
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Retryable: true, Err: err}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Forbidden reports missing permissions.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// AccountLocked reports an active lockout window.
func AccountLocked(until time.Time) *Error {
	return &Error{Kind: KindLocked, Message: "account locked until " + until.UTC().Format(time.RFC3339)}
}

// Internal wraps an unexpected store or runtime failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// DeadlineExceeded reports a request that ran past its deadline.
func DeadlineExceeded(err error) *Error {
	return &Error{Kind: KindDeadline, Message: "request deadline exceeded", Retryable: true, Err: err}
}

// KindOf resolves the transport kind of any error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadline
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// AsError extracts the *Error from err when present.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
