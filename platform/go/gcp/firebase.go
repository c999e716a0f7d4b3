// Package gcp wraps Firebase Admin SDK initialization for admin tooling.
package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// NewApp creates a Firebase App. With a nil credentials path the SDK falls
// back to application default credentials.
func NewApp(ctx context.Context, credentialsPath *string) (*firebase.App, error) {
	if credentialsPath != nil {
		return firebase.NewApp(ctx, nil, option.WithCredentialsFile(*credentialsPath))
	}
	return firebase.NewApp(ctx, nil)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client
// for admin operations (listing users, forcing email verification).
func InitFirebaseAuth(ctx context.Context, credentialsPath *string) (*firebase.App, *firebaseauth.Client, error) {
	app, err := NewApp(ctx, credentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return app, fbAuth, nil
}
