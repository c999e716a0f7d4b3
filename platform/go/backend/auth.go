package backend

import (
	"context"
	"net/http"
)

// Me fetches the application user bound to the current identity.
// A structurally empty payload is reported as ErrNotFound so callers can
// drive registration the same way they do for a real 404.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, authBearer, http.MethodGet, "/api/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	if !user.Valid() {
		return nil, ErrNotFound
	}
	return &user, nil
}

// Register provisions the application user for the current identity.
// Fails with *EmailNotVerifiedError while the email is unconfirmed.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*User, error) {
	var user User
	if err := c.do(ctx, authBearer, http.MethodPost, "/api/auth/register", nil, input, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendVerificationCode asks the backend to email a one-time code to the
// identity's address.
func (c *Client) SendVerificationCode(ctx context.Context) error {
	return c.do(ctx, authBearer, http.MethodPost, "/api/auth/send-code", nil, nil, nil)
}

// VerifyCode submits the one-time code.
func (c *Client) VerifyCode(ctx context.Context, code string) error {
	payload := struct {
		Code string `json:"code"`
	}{Code: code}
	return c.do(ctx, authBearer, http.MethodPost, "/api/auth/verify-code", nil, payload, nil)
}
