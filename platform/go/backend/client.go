package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenSource supplies the bearer token attached to authenticated requests.
// The identity provider refreshes tokens behind this function.
type TokenSource func(ctx context.Context) (string, error)

// Config captures the knobs for building a Client.
type Config struct {
	BaseURL    string
	Token      TokenSource   // bearer auth for user-facing endpoints
	APIKey     string        // X-API-Key auth for gateway endpoints
	UserAgent  string        // defaults to "netview-go"
	Timeout    time.Duration // per-request; defaults to 30s
	HTTPClient *http.Client  // optional override, used by tests
	Logger     *zap.Logger
}

// Client talks to the NetView backend REST API.
type Client struct {
	baseURL   string
	http      *http.Client
	token     TokenSource
	apiKey    string
	userAgent string
	logger    *zap.Logger
}

// New builds a Client from the provided configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "netview-go"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:   base,
		http:      httpClient,
		token:     cfg.Token,
		apiKey:    cfg.APIKey,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

type authMode int

const (
	authBearer authMode = iota
	authAPIKey
	authNone
)

// errorEnvelope is the backend's error body shape.
type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	// Some endpoints return a flat message.
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, mode authMode, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	switch mode {
	case authBearer:
		if c.token == nil {
			return ErrUnauthorized
		}
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case authAPIKey:
		if c.apiKey == "" {
			return errors.New("backend api key is not configured")
		}
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.classify(resp.StatusCode, raw, method, path)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
		}
	}

	return nil
}

// classify maps failure responses onto the error taxonomy: not-found and
// unauthorized become sentinels, 403 EMAIL_NOT_VERIFIED becomes the typed
// recoverable error, everything else is an APIError.
func (c *Client) classify(status int, raw []byte, method, path string) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(raw, &envelope)

	code := envelope.Error.Code
	message := envelope.Error.Message
	if message == "" {
		message = envelope.Message
	}

	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden && code == CodeEmailNotVerified:
		var details EmailNotVerifiedDetails
		if len(envelope.Error.Details) > 0 {
			_ = json.Unmarshal(envelope.Error.Details, &details)
		}
		return &EmailNotVerifiedError{Details: details}
	}

	c.logger.Debug("backend request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("code", code),
	)

	return &APIError{Status: status, Code: code, Message: message}
}
