// Package apperrors defines the error kinds surfaced by the portal core and
// their mapping onto HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindInvalidTransition  Kind = "invalid_transition"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)

// Error is a structured error. CurrentStatus and CurrentVerificationStatus are
// only populated for invalid transitions so the caller can re-sync.
type Error struct {
	Kind                      Kind
	Message                   string
	Fields                    map[string]string
	CurrentStatus             string
	CurrentVerificationStatus string
	Err                       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (" + strings.Join(parts, "; ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields builds a validation error carrying per-field messages.
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a failed state precondition along with the state
// observed at the time of failure.
func InvalidTransition(status, verificationStatus, format string, args ...any) *Error {
	return &Error{
		Kind:                      KindInvalidTransition,
		Message:                   fmt.Sprintf(format, args...),
		CurrentStatus:             status,
		CurrentVerificationStatus: verificationStatus,
	}
}

func StorageUnavailable(err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable", Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition:
		return http.StatusConflict
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body renders err as a JSON-compatible response body. Internal errors are
// reported generically so driver messages never leak to clients.
func Body(err error) map[string]any {
	var e *Error
	if !errors.As(err, &e) {
		return map[string]any{"error": "internal server error", "code": KindInternal}
	}
	body := map[string]any{"error": e.Message, "code": e.Kind}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.Kind == KindInvalidTransition {
		body["current_status"] = e.CurrentStatus
		body["current_verification_status"] = e.CurrentVerificationStatus
	}
	return body
}
