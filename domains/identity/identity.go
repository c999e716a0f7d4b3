// Package identity wraps the external authentication provider behind a small
// contract: sign-in, sign-out, token retrieval, and a subscription to
// identity-state changes. Consumers register exactly one listener through the
// session store; fan-out to further subscribers happens there, not here.
package identity

import (
	"context"
	"errors"
)

// Identity is the externally authenticated principal, distinct from the
// backend application-user record. It is replaced wholesale on every
// provider state change; nil means signed out.
type Identity struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// Provider errors.
var (
	// ErrInvalidCredentials covers wrong email/password and disabled accounts.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrSignInAborted is returned when the user cancels an interactive
	// sign-in flow before it completes.
	ErrSignInAborted = errors.New("identity: sign-in aborted")
	// ErrSignedOut is returned by IDToken when no session is active.
	ErrSignedOut = errors.New("identity: signed out")
)

// Provider is the identity-provider adapter contract.
type Provider interface {
	// OnIdentityChange registers a listener invoked once immediately with the
	// current identity (or nil), and again on every sign-in/sign-out.
	// The returned function unsubscribes the listener.
	OnIdentityChange(fn func(*Identity)) (unsubscribe func())

	// CurrentIdentity returns a snapshot of the signed-in identity, or nil.
	CurrentIdentity() *Identity

	SignInWithEmailPassword(ctx context.Context, email, password string) (*Identity, error)
	SignInWithGoogle(ctx context.Context) (*Identity, error)

	// SignOut clears the local session and notifies listeners. Local cleanup
	// never depends on remote success.
	SignOut(ctx context.Context) error

	// IDToken returns a valid bearer token for backend calls, refreshing the
	// session transparently when the cached token has expired.
	IDToken(ctx context.Context) (string, error)
}
