// Package errors provides unified error handling for RelayHub.
// Every failure surfaced by the trigger pipeline carries a Code so
// transports can map it to a status and callers can match with errors.Is.
package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code for categorization.
type Code string

const (
	// CodeInvalidRequest marks a request body or query the API could not accept.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeInvalidRecipient marks a malformed entry in a trigger's recipient list.
	CodeInvalidRecipient Code = "INVALID_RECIPIENT"
	// CodeTopicNotFound marks a topic reference whose key does not exist in the environment.
	CodeTopicNotFound Code = "TOPIC_NOT_FOUND"
	// CodeTemplateNotFound marks a trigger naming an unknown workflow.
	CodeTemplateNotFound Code = "TEMPLATE_NOT_FOUND"
	// CodeSubscriberRegistration marks a failed inline subscriber upsert.
	CodeSubscriberRegistration Code = "SUBSCRIBER_REGISTRATION_FAILED"
	// CodeTemplateRender marks a channel step whose template could not be applied.
	CodeTemplateRender Code = "TEMPLATE_RENDER_FAILED"
	// CodeTopicAlreadyExists marks a topic creation with a key already in use.
	CodeTopicAlreadyExists Code = "TOPIC_ALREADY_EXISTS"
	// CodeUnauthorized marks a request without valid credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeInternal marks an unexpected failure in storage or queueing.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is the unified error type carrying a code, message and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches against another *Error by code.
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Code == other.Code
	}
	return false
}

// WithDetails attaches free-form detail text and returns the error.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error under the given code.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if coded, ok := err.(*Error); ok {
		return coded.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidRequest, CodeInvalidRecipient, CodeSubscriberRegistration, CodeTemplateRender:
		return http.StatusBadRequest
	case CodeTopicNotFound, CodeTemplateNotFound:
		return http.StatusNotFound
	case CodeTopicAlreadyExists:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for the pipeline taxonomy.

// InvalidRecipient reports a recipient entry matching none of the accepted shapes.
func InvalidRecipient(format string, args ...any) *Error {
	return Newf(CodeInvalidRecipient, format, args...)
}

// TopicNotFound reports a missing topic key.
func TopicNotFound(key string) *Error {
	return Newf(CodeTopicNotFound, "topic %q not found", key)
}

// TemplateNotFound reports an unknown workflow name.
func TemplateNotFound(name string) *Error {
	return Newf(CodeTemplateNotFound, "workflow %q not found", name)
}

// SubscriberRegistration reports a failed inline subscriber upsert.
func SubscriberRegistration(subscriberID string, cause error) *Error {
	return Wrap(cause, CodeSubscriberRegistration,
		fmt.Sprintf("failed to register subscriber %q", subscriberID))
}
