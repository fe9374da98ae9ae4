// AngelaMos | 2026
// errors.go

package identity

import (
	"errors"
	"net/http"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

const (
	CodeEmailInUse        = "email-already-in-use"
	CodeWeakPassword      = "weak-password"
	CodeWrongPassword     = "wrong-password"
	CodeUserNotFound      = "user-not-found"
	CodeInvalidEmail      = "invalid-email"
	CodeFederatedDisabled = "federated-disabled"
	CodeFederatedFailed   = "federated-failed"
	CodeNoCurrentUser     = "no-current-user"
)

const MinPasswordLength = 6

// ErrProvider matches every *ProviderError through errors.Is.
var ErrProvider = errors.New("identity provider error")

// ProviderError carries a stable machine code plus a human-readable message
// that is surfaced to the client verbatim.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	if other, ok := target.(*ProviderError); ok {
		return other.Code == e.Code
	}
	return false
}

func newError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

var (
	errEmailInUse = newError(
		CodeEmailInUse,
		"the email address is already in use by another account",
	)
	errWeakPassword = newError(
		CodeWeakPassword,
		"password should be at least 6 characters",
	)
	errWrongPassword = newError(CodeWrongPassword, "the password is invalid")
	errUserNotFound  = newError(
		CodeUserNotFound,
		"there is no user record corresponding to this identifier",
	)
	errInvalidEmail  = newError(CodeInvalidEmail, "the email address is badly formatted")
	errNoCurrentUser = newError(CodeNoCurrentUser, "no user is signed in")
)

// FederatedDisabled is returned when federated login is not configured.
func FederatedDisabled() *ProviderError {
	return newError(CodeFederatedDisabled, "federated sign-in is not enabled")
}

func FederatedFailed(message string) *ProviderError {
	return newError(CodeFederatedFailed, message)
}

// CodeOf returns the provider code of err, or "" when err is not a
// provider error.
func CodeOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

var statusByCode = map[string]int{
	CodeEmailInUse:        http.StatusConflict,
	CodeWeakPassword:      http.StatusBadRequest,
	CodeInvalidEmail:      http.StatusBadRequest,
	CodeWrongPassword:     http.StatusUnauthorized,
	CodeUserNotFound:      http.StatusUnauthorized,
	CodeNoCurrentUser:     http.StatusUnauthorized,
	CodeFederatedFailed:   http.StatusUnauthorized,
	CodeFederatedDisabled: http.StatusNotImplemented,
}

// AppError converts a provider error into the HTTP error envelope, keeping
// the provider code and message. ok is false for any other error.
func AppError(err error) (appErr *core.AppError, ok bool) {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return nil, false
	}
	status, known := statusByCode[pe.Code]
	if !known {
		status = http.StatusBadRequest
	}
	return core.NewAppError(err, pe.Message, status, pe.Code), true
}
