// Package errors defines the closed error taxonomy shared by every service
// operation. Each kind has a stable machine code, a human-readable message and
// exactly one HTTP status class; internal detail never reaches the caller.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine codes consumed by API clients.
const (
	CodeInvalidCredentials      = "invalid_credentials"
	CodeTokenExpired            = "token_expired"
	CodeTokenInvalid            = "token_invalid"
	CodeUnauthenticated         = "unauthenticated"
	CodeEmailAlreadyExists      = "email_already_exists"
	CodeUsernameAlreadyExists   = "username_already_exists"
	CodeInvalidProviderToken    = "invalid_provider_token"
	CodeProviderAccountMismatch = "provider_account_mismatch"
	CodeValidationFailed        = "validation_failed"
	CodeNotFound                = "not_found"
	CodeRateLimited             = "rate_limited"
	CodeInternal                = "internal_error"
)

// genericInternalMessage replaces the real failure message for unclassified
// errors so that store or collaborator detail never leaks to the caller.
const genericInternalMessage = "An error occurred while processing your request."

// Error is a taxonomy error. It carries everything the transport layer needs
// to render a uniform response.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for logging; it is never serialized.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches a structured detail field and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// IsClientError reports whether the error maps to a 4xx status.
func (e *Error) IsClientError() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

// InvalidCredentials is the single error returned for every password-login
// failure mode. Keeping it indistinguishable resists account enumeration.
func InvalidCredentials() *Error {
	return newError(CodeInvalidCredentials,
		"The email or password you entered is incorrect.", http.StatusUnauthorized)
}

func TokenExpired() *Error {
	return newError(CodeTokenExpired,
		"Your session has expired. Please log in again.", http.StatusUnauthorized)
}

func TokenInvalid() *Error {
	return newError(CodeTokenInvalid,
		"Invalid authentication token. Please log in again.", http.StatusUnauthorized)
}

func Unauthenticated() *Error {
	return newError(CodeUnauthenticated,
		"Authentication required. Please log in.", http.StatusUnauthorized)
}

func EmailAlreadyExists() *Error {
	return newError(CodeEmailAlreadyExists,
		"An account with this email already exists. Try logging in instead.", http.StatusConflict)
}

func UsernameAlreadyExists() *Error {
	return newError(CodeUsernameAlreadyExists,
		"This username is already taken. Please choose a different one.", http.StatusConflict)
}

func InvalidProviderToken() *Error {
	return newError(CodeInvalidProviderToken,
		"Google authentication failed. Please try signing in again.", http.StatusUnauthorized)
}

func ProviderAccountMismatch() *Error {
	return newError(CodeProviderAccountMismatch,
		"This Google account is already linked to a different user.", http.StatusConflict)
}

func ValidationFailed(message string) *Error {
	if message == "" {
		message = "Please check your input - some fields contain invalid data."
	}
	return newError(CodeValidationFailed, message, http.StatusUnprocessableEntity)
}

func NotFound(resource string) *Error {
	return newError(CodeNotFound, resource+" not found.", http.StatusNotFound)
}

func RateLimited() *Error {
	return newError(CodeRateLimited,
		"Too many requests. Please wait before trying again.", http.StatusTooManyRequests)
}

// Internal wraps an unclassified failure. The cause is retained for logging
// only; the user-visible message is always the generic one.
func Internal(cause error) *Error {
	e := newError(CodeInternal, genericInternalMessage, http.StatusInternalServerError)
	e.cause = cause
	return e
}

// From normalizes any error to a taxonomy error. Errors that are already part
// of the taxonomy pass through; everything else becomes internal_error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
