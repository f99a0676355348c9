package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown         Kind = "UNKNOWN"
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindAccessDenied    Kind = "ACCESS_DENIED"
	KindStateConflict   Kind = "STATE_CONFLICT"
	KindQuotaExceeded   Kind = "QUOTA_EXCEEDED"
	KindUpstreamFailure Kind = "UPSTREAM_FAILURE"
)

type AppError struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) error {
	return New(KindValidation, msg)
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func AccessDenied(msg string) error {
	return New(KindAccessDenied, msg)
}

// StateConflict names the state that made the action invalid so callers
// can report it ("cannot accept a call in status 'ended'").
func StateConflict(msg, currentState string) error {
	return &AppError{
		Kind:    KindStateConflict,
		Message: msg,
		Details: map[string]interface{}{"currentState": currentState},
	}
}

// QuotaExceeded carries the remaining allowance and a reset-time hint.
func QuotaExceeded(feature string, remaining int, resetHint string) error {
	return &AppError{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("daily limit reached for %s", feature),
		Details: map[string]interface{}{
			"feature":   feature,
			"remaining": remaining,
			"resetsAt":  resetHint,
		},
	}
}

func Upstream(msg string, cause error) error {
	return &AppError{Kind: KindUpstreamFailure, Message: msg, Cause: cause}
}

// KindOf extracts the stable kind from any error in the chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// DetailsOf returns the structured details, or nil.
func DetailsOf(err error) map[string]interface{} {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
