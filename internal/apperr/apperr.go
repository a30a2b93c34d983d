// Package apperr defines the error kinds the classifier reports to its callers.
//
// Every failure that crosses a package boundary is either an *Error carrying a
// stable Kind, or a *ValidationError raised while building a classification
// record. The HTTP layer branches on the kind; anything else is unexpected.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidInput  Kind = "InvalidInputError"
	Transcription Kind = "TranscriptionError"
	Inference     Kind = "InferenceError"
	AIValidation  Kind = "AIValidationError"
	Validation    Kind = "ValidationError"
)

type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ToMap renders the error as the {error, message, details} body clients branch on.
func (e *Error) ToMap() map[string]any {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"error":   string(e.Kind),
		"message": e.Message,
		"details": details,
	}
}

func New(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap attaches err as the cause and records its text under details["error"]
// unless the caller already set that key.
func Wrap(kind Kind, message string, err error, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	if _, ok := details["error"]; !ok && err != nil {
		details["error"] = err.Error()
	}
	return &Error{Kind: kind, Message: message, Details: details, Err: err}
}

// ValidationError reports a classification field outside its closed domain,
// a missing field, or a value of the wrong encoding kind.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) ToMap() map[string]any {
	return map[string]any{
		"error":   string(Validation),
		"message": e.Error(),
		"details": map[string]any{"field": e.Field, "value": e.Value},
	}
}

// KindOf returns the kind of the outermost recognized error in err's chain.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Validation, true
	}
	return "", false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps recognized kinds to 400 and everything else to 500.
func HTTPStatus(err error) int {
	if _, ok := KindOf(err); ok {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
