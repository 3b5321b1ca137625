// Package apperrors defines the error taxonomy shared by every layer of the
// control plane: repositories translate low-level DB errors into it,
// services never re-wrap it, and the HTTP layer maps it onto transport
// status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies which bucket of the taxonomy an error belongs to.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL"
)

// ServiceError is the single error type surfaced by the control plane. It
// never carries secret material, password hashes, raw token secrets, or
// cryptographic keys in Message or Details.
type ServiceError struct {
	Code       Code
	Message    string
	Field      string
	Resource   string
	Identifier string
	RetryAfter int
	Details    map[string]interface{}
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// HTTPStatus maps the taxonomy onto a transport-level status code.
func (e *ServiceError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message, field string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, Field: field}
}

func NewNotFoundError(resource, identifier string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, identifier),
		Resource:   resource,
		Identifier: identifier,
	}
}

func NewConflictError(message, resource string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, Resource: resource}
}

func NewUnauthenticatedError(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return &ServiceError{Code: CodeUnauthenticated, Message: message}
}

func NewForbiddenError(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return &ServiceError{Code: CodeForbidden, Message: message}
}

func NewRateLimitedError(retryAfterSeconds int) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfterSeconds,
	}
}

func NewServiceUnavailableError(message string) *ServiceError {
	return &ServiceError{Code: CodeServiceUnavailable, Message: message}
}

func NewInternalError(cause error) *ServiceError {
	msg := "internal error"
	if cause != nil {
		msg = cause.Error()
	}
	return &ServiceError{Code: CodeInternal, Message: msg, Cause: cause}
}

// IsServiceError reports whether err (or a wrapped cause) is a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// GetServiceError unwraps err into a ServiceError, wrapping unclassified
// errors as CodeInternal so callers always have a taxonomy member to branch
// on.
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return NewInternalError(err)
}

// WithDetails attaches machine-readable context (never secret material).
func (e *ServiceError) WithDetails(details map[string]interface{}) *ServiceError {
	e.Details = details
	return e
}
