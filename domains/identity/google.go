package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GoogleAuthenticator runs the OAuth authorization-code flow against Google
// with a loopback redirect, verifies the returned ID token via OIDC
// discovery, and hands the raw token to the Firebase provider for exchange.
type GoogleAuthenticator struct {
	ClientID     string
	ClientSecret string
	// OpenURL presents the consent URL to the user; defaults to printing it.
	OpenURL func(url string) error
	// Issuer override for tests.
	Issuer string
	Logger *zap.Logger
}

// TokenFunc adapts the authenticator to the provider's GoogleTokenFunc hook.
func (g *GoogleAuthenticator) TokenFunc() GoogleTokenFunc {
	return g.IDToken
}

// IDToken performs the interactive flow and returns a verified Google ID token.
// Returns ErrSignInAborted when ctx is cancelled before the redirect lands.
func (g *GoogleAuthenticator) IDToken(ctx context.Context) (string, error) {
	if g.ClientID == "" {
		return "", errors.New("identity: google client id is required")
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	issuer := g.Issuer
	if issuer == "" {
		issuer = "https://accounts.google.com"
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("start loopback listener: %w", err)
	}
	defer listener.Close()

	conf := &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  fmt.Sprintf("http://%s/callback", listener.Addr().String()),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("state") != state {
			errCh <- errors.New("identity: oauth state mismatch")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := r.URL.Query().Get("error"); msg != "" {
			errCh <- fmt.Errorf("%w: %s", ErrSignInAborted, msg)
			fmt.Fprintln(w, "Sign-in was cancelled. You can close this window.")
			return
		}
		codeCh <- r.URL.Query().Get("code")
		fmt.Fprintln(w, "Signed in. You can close this window.")
	})}
	go func() { _ = server.Serve(listener) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if g.OpenURL != nil {
		if err := g.OpenURL(authURL); err != nil {
			return "", err
		}
	} else {
		fmt.Printf("Open the following URL in your browser to sign in:\n\n  %s\n\n", authURL)
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrSignInAborted, ctx.Err())
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange auth code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("identity: token response missing id_token")
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: g.ClientID})
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return "", fmt.Errorf("verify google id token: %w", err)
	}

	logger.Debug("google sign-in completed")
	return rawIDToken, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
