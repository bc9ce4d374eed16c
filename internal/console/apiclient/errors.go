package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call for the view layer.
type Kind string

const (
	// KindValidation is raised locally; the request is never sent.
	KindValidation Kind = "validation"
	// KindAuthentication means the session was rejected and has been ended.
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindBusiness       Kind = "business"
	// KindTransport means no response arrived.
	KindTransport Kind = "transport"
)

const (
	MessageNoResponse   = "No server response"
	MessageAccessDenied = "Access denied"
	MessageSignedOut    = "Your session has ended, please sign in again"
	MessageNotFound     = "Not found"
	MessageGeneric      = "Something went wrong"
)

type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	// Fields carries per-field reasons for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status > 0 && e.Code != "":
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid builds a local validation error for one field.
func Invalid(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_error",
		Message: field + " " + reason,
		Fields:  map[string]string{field: reason},
	}
}

// KindOf returns the classification of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Message is the single line shown to the user for err.
func Message(err error) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return MessageGeneric
	}
	switch apiErr.Kind {
	case KindTransport:
		return MessageNoResponse
	case KindAuthentication:
		return MessageSignedOut
	case KindAuthorization:
		return MessageAccessDenied
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if apiErr.Kind == KindNotFound {
		return MessageNotFound
	}
	return MessageGeneric
}

func kindForStatus(status int, code string) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case code == "validation_error":
		return KindValidation
	}
	return KindBusiness
}
