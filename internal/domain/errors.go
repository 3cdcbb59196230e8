package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error types for consistent error handling across the session core and the
// HTTP gateway.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or unknown session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrWrongState indicates an operation that the current session state does
// not allow, e.g. answering onboarding questions from Home.
type ErrWrongState struct {
	Operation string
	Status    SessionStatus
}

func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("%s not allowed while session is %s", e.Operation, e.Status)
}

// ErrSaveInFlight is returned when an onboarding save is requested while a
// previous one has not resolved yet.
var ErrSaveInFlight = errors.New("onboarding save already in progress")

// ============================================================
// Credential provider errors
// ============================================================

// AuthErrorKind classifies credential provider failures.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthEmailInUse         AuthErrorKind = "email_in_use"
	AuthWeakPassword       AuthErrorKind = "weak_password"
	AuthNetwork            AuthErrorKind = "network"
	AuthRateLimited        AuthErrorKind = "rate_limited"
	AuthUserDisabled       AuthErrorKind = "user_disabled"
	AuthTimeout            AuthErrorKind = "timeout"
	AuthUnknown            AuthErrorKind = "unknown"
)

var authMessages = map[AuthErrorKind]string{
	AuthInvalidCredentials: "The email or password you entered is incorrect.",
	AuthEmailInUse:         "An account with this email already exists.",
	AuthWeakPassword:       "Password must be at least 6 characters and contain a letter and a number.",
	AuthNetwork:            "Please check your internet connection.",
	AuthRateLimited:        "Too many attempts. Please try again later.",
	AuthUserDisabled:       "This account has been disabled.",
	AuthTimeout:            "Sign-in timed out. Please try again.",
	AuthUnknown:            "Something went wrong while signing in. Please try again.",
}

// AuthError is raised by credential provider calls. It is never retried
// automatically; Message is shown to the user verbatim.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth %s", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for the error kind.
func (e *AuthError) Message() string {
	if msg, ok := authMessages[e.Kind]; ok {
		return msg
	}
	return authMessages[AuthUnknown]
}

// NewAuthError wraps err with the given kind.
func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// ============================================================
// Profile store errors
// ============================================================

// StoreErrorKind classifies document store failures.
type StoreErrorKind string

const (
	StoreNetwork          StoreErrorKind = "network"
	StorePermissionDenied StoreErrorKind = "permission_denied"
	StoreDecodeFailure    StoreErrorKind = "decode_failure"
	StoreUnknown          StoreErrorKind = "unknown"
)

var storeMessages = map[StoreErrorKind]string{
	StoreNetwork:          "We couldn't reach the server. Please check your connection and try again.",
	StorePermissionDenied: "You don't have permission to access this profile.",
	StoreDecodeFailure:    "Your profile data could not be read. Please contact support.",
	StoreUnknown:          "Something went wrong while loading your profile. Please try again.",
}

// StoreError is raised by profile and scheduling store calls.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s [%s]: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s [%s]", e.Op, e.Kind)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for the error kind.
func (e *StoreError) Message() string {
	if msg, ok := storeMessages[e.Kind]; ok {
		return msg
	}
	return storeMessages[StoreUnknown]
}

// NewStoreError wraps err with the given kind and operation name.
func NewStoreError(kind StoreErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// UserMessage picks the single human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Message()
	}
	var validation *ErrValidation
	if errors.As(err, &validation) {
		return validation.Message
	}
	if errors.Is(err, ErrSaveInFlight) {
		return "Your answers are already being saved."
	}
	return "Something went wrong. Please try again."
}

// IsTransient reports whether err may succeed on a later attempt. Permission,
// decode, validation and auth failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind == StoreNetwork || storeErr.Kind == StoreUnknown
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var validation *ErrValidation
	if errors.As(err, &validation) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
