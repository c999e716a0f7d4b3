package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for the expected, recoverable branches of the auth sync
// flow. Callers branch on these instead of surfacing them to the user.
var (
	// ErrNotFound indicates the identity has no application-user record yet.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnauthorized indicates the request carried no usable session.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// CodeEmailNotVerified is the backend error code blocking registration until
// the user's email address is confirmed via a one-time code.
const CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"

// EmailNotVerifiedDetails carries the registration data the backend echoes
// back so the client can resume onboarding after verification.
type EmailNotVerifiedDetails struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Company   *string `json:"company,omitempty"`
}

// EmailNotVerifiedError is the classified 403 EMAIL_NOT_VERIFIED response.
type EmailNotVerifiedError struct {
	Details EmailNotVerifiedDetails
}

func (e *EmailNotVerifiedError) Error() string {
	return "backend: email not verified"
}

// APIError is any backend failure outside the classified branches above.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("backend: request failed (status %d)", e.Status)
}

// IsEmailNotVerified reports whether err is the EMAIL_NOT_VERIFIED branch.
func IsEmailNotVerified(err error) bool {
	var env *EmailNotVerifiedError
	return errors.As(err, &env)
}
