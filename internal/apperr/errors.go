package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category. API clients branch on the kind,
// never on the message text.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindConflict            Kind = "CONFLICT"
	KindNotFound            Kind = "NOT_FOUND"
	KindDataIntegrity       Kind = "DATA_INTEGRITY"
)

// Error carries a kind alongside the message. Fields lists the offending
// input fields for validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ValidationFields(message string, fields []string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func InsufficientBalance(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInsufficientBalance, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func DataIntegrity(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDataIntegrity, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// an empty kind and are treated as internal by the HTTP layer.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FieldsOf returns the offending fields of a validation error, if any.
func FieldsOf(err error) []string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}
