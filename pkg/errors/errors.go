// Package errors defines custom error types and error handling utilities for the certguard service.
// Every error surfaced to a caller carries a stable code, an HTTP status and optional metadata.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/certguard/pkg/constants"
)

// GenericAuthMessage is the only message returned for failed authentication, whatever the cause.
const GenericAuthMessage = "Invalid credentials"

// Session expiry reasons.
const (
	SessionExpiredIdle     = "idle"
	SessionExpiredAbsolute = "absolute"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// CertError represents a structured error with additional metadata
type CertError interface {
	error

	// Code returns the machine-readable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description safe to show to clients
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) CertError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) CertError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// baseError is the internal implementation of CertError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) WithCause(cause error) CertError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) CertError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// Is reports error equality by code, so errors.Is(err, ErrUnauthorized()) works across instances.
func (e *baseError) Is(target error) bool {
	t, ok := target.(*baseError)
	if !ok {
		return false
	}
	return e.code == t.code
}

// NewError creates a new CertError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) CertError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
	}
}

// ================================================================================
// Domain Errors
// ================================================================================

// ErrUnauthorized is returned for bad credentials, bad OTP codes, lockouts and expired or reused
// refresh tokens. The description never reveals which of those applied.
func ErrUnauthorized(message string) CertError {
	return NewError(constants.ErrCodeUnauthorized, http.StatusUnauthorized, GenericAuthMessage, message)
}

// ErrSessionExpired is returned when a session exceeds its idle or absolute timeout.
func ErrSessionExpired(reason string) CertError {
	return NewError(constants.ErrCodeSessionExpired, http.StatusUnauthorized,
		"Session expired", fmt.Sprintf("session expired (%s timeout)", reason)).
		WithMetadata("reason", reason)
}

// ErrInvalidatedRefreshToken is returned when a rotated refresh token id is presented again.
func ErrInvalidatedRefreshToken(tokenID string) CertError {
	return NewError(constants.ErrCodeInvalidatedRefreshToken, http.StatusUnauthorized,
		GenericAuthMessage, "refresh token was already used").
		WithMetadata("refresh_token_id", tokenID)
}

// ErrForbidden is returned when the caller is authenticated but not allowed.
func ErrForbidden(message string) CertError {
	return NewError(constants.ErrCodeForbidden, http.StatusForbidden, "Forbidden", message)
}

// ErrConflict is returned when a unique resource already exists.
func ErrConflict(message string) CertError {
	return NewError(constants.ErrCodeConflict, http.StatusConflict, message, message)
}

// ErrNotFound is returned when an entity cannot be found.
func ErrNotFound(entity string, id string) CertError {
	return NewError(constants.ErrCodeNotFound, http.StatusNotFound,
		fmt.Sprintf("%s not found", entity), fmt.Sprintf("%s %q not found", entity, id)).
		WithMetadata("entity", entity)
}

// ErrValidation is returned for malformed input. fields maps snake_case field names to messages.
func ErrValidation(message string, fields map[string]string) CertError {
	e := NewError(constants.ErrCodeValidation, http.StatusBadRequest, message, message)
	if len(fields) > 0 {
		e.WithMetadata("fields", fields)
	}
	return e
}

// ErrRateLimitExceeded is returned when a caller exceeds its request budget.
func ErrRateLimitExceeded(scope string, limit int) CertError {
	return NewError(constants.ErrCodeRateLimitExceeded, http.StatusTooManyRequests,
		"Too many requests", fmt.Sprintf("rate limit of %d exceeded for %s", limit, scope)).
		WithMetadata("scope", scope)
}

// ErrInternal wraps an unexpected failure.
func ErrInternal(message string) CertError {
	return NewError(constants.ErrCodeInternal, http.StatusInternalServerError, "Internal server error", message)
}

// ErrServiceUnavailable is returned when an infrastructure dependency cannot be reached.
func ErrServiceUnavailable(dependency string) CertError {
	return NewError(constants.ErrCodeServiceUnavailable, http.StatusServiceUnavailable,
		"Service temporarily unavailable", fmt.Sprintf("%s unavailable", dependency)).
		WithMetadata("dependency", dependency)
}

// ErrSigningFailed is returned for any credential signing failure. It is never retried in-request.
func ErrSigningFailed(message string) CertError {
	return NewError(constants.ErrCodeSigningFailed, http.StatusInternalServerError, "Credential signing failed", message)
}

// ErrVerificationFailed is returned when a proof cannot be checked at all (as opposed to being invalid).
func ErrVerificationFailed(message string) CertError {
	return NewError(constants.ErrCodeVerificationFailed, http.StatusUnprocessableEntity, "Credential verification failed", message)
}

// ================================================================================
// Helpers
// ================================================================================

// AsCertError extracts a CertError from an error chain.
func AsCertError(err error) (CertError, bool) {
	var ce CertError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// WrapError wraps err in a CertError with the given code unless it already is one.
func WrapError(err error, code constants.ErrorCode, message string) CertError {
	if err == nil {
		return nil
	}
	if ce, ok := AsCertError(err); ok {
		return ce
	}
	status := http.StatusInternalServerError
	switch code {
	case constants.ErrCodeUnauthorized, constants.ErrCodeSessionExpired, constants.ErrCodeInvalidatedRefreshToken:
		status = http.StatusUnauthorized
	case constants.ErrCodeNotFound:
		status = http.StatusNotFound
	case constants.ErrCodeConflict:
		status = http.StatusConflict
	case constants.ErrCodeValidation:
		status = http.StatusBadRequest
	case constants.ErrCodeServiceUnavailable:
		status = http.StatusServiceUnavailable
	}
	return NewError(code, status, message, message).WithCause(err)
}

func hasCode(err error, code constants.ErrorCode) bool {
	ce, ok := AsCertError(err)
	return ok && ce.Code() == code
}

// IsUnauthorizedError reports whether err should surface as 401.
func IsUnauthorizedError(err error) bool {
	ce, ok := AsCertError(err)
	return ok && ce.HTTPStatus() == http.StatusUnauthorized
}

// IsSessionExpiredError reports whether err is an idle or absolute timeout.
func IsSessionExpiredError(err error) bool { return hasCode(err, constants.ErrCodeSessionExpired) }

// IsInvalidatedRefreshTokenError reports whether err signals refresh token reuse.
func IsInvalidatedRefreshTokenError(err error) bool {
	return hasCode(err, constants.ErrCodeInvalidatedRefreshToken)
}

// IsNotFoundError reports whether err is a not-found error.
func IsNotFoundError(err error) bool { return hasCode(err, constants.ErrCodeNotFound) }

// IsConflictError reports whether err is a conflict.
func IsConflictError(err error) bool { return hasCode(err, constants.ErrCodeConflict) }

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return hasCode(err, constants.ErrCodeValidation) }

// IsServiceUnavailableError reports whether err is an infrastructure outage.
func IsServiceUnavailableError(err error) bool {
	return hasCode(err, constants.ErrCodeServiceUnavailable)
}

// SessionExpiredReason returns "idle" or "absolute" for a session expiry error.
func SessionExpiredReason(err error) string {
	ce, ok := AsCertError(err)
	if !ok || ce.Code() != constants.ErrCodeSessionExpired {
		return ""
	}
	reason, _ := ce.Metadata()["reason"].(string)
	return reason
}

// ================================================================================
// HTTP Response Mapping
// ================================================================================

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// ToErrorResponse converts any error to a status code and a client-safe body.
// Internal detail is never included; session expiry surfaces as unauthorized.
func ToErrorResponse(err error) (int, *ErrorResponse) {
	ce, ok := AsCertError(err)
	if !ok {
		return http.StatusInternalServerError, &ErrorResponse{
			Error:            string(constants.ErrCodeInternal),
			ErrorDescription: "Internal server error",
		}
	}
	code := ce.Code()
	if code == constants.ErrCodeSessionExpired || code == constants.ErrCodeInvalidatedRefreshToken {
		code = constants.ErrCodeUnauthorized
	}
	resp := &ErrorResponse{Error: string(code), ErrorDescription: ce.Description()}
	if fields, ok := ce.Metadata()["fields"].(map[string]string); ok {
		resp.Fields = fields
	}
	return ce.HTTPStatus(), resp
}
