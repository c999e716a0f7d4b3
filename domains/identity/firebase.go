package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultSignInEndpoint = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenEndpoint  = "https://securetoken.googleapis.com/v1/token"

	// Refresh slightly before the reported expiry to absorb clock skew.
	tokenExpirySlack = 2 * time.Minute
)

// GoogleTokenFunc obtains a Google ID token interactively (see GoogleAuthenticator).
type GoogleTokenFunc func(ctx context.Context) (string, error)

// FirebaseConfig configures the Identity Toolkit-backed provider.
type FirebaseConfig struct {
	APIKey string
	// GoogleToken runs the interactive Google sign-in; required for
	// SignInWithGoogle.
	GoogleToken GoogleTokenFunc
	// SignInEndpoint and TokenEndpoint override the Google endpoints in tests.
	SignInEndpoint string
	TokenEndpoint  string
	// Revoke, when set, is invoked with the refresh token on sign-out after
	// the local session has already been cleared. Failures are logged only.
	Revoke     func(ctx context.Context, refreshToken string) error
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type session struct {
	identity     Identity
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// FirebaseProvider implements Provider against the Firebase Identity Toolkit
// REST API. Safe for concurrent use.
type FirebaseProvider struct {
	cfg    FirebaseConfig
	http   *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	sess      *session
	listeners map[int]func(*Identity)
	nextID    int
}

// NewFirebaseProvider validates the configuration and returns a provider with
// no active session.
func NewFirebaseProvider(cfg FirebaseConfig) (*FirebaseProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("identity: firebase api key is required")
	}
	if cfg.SignInEndpoint == "" {
		cfg.SignInEndpoint = defaultSignInEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = defaultTokenEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirebaseProvider{
		cfg:       cfg,
		http:      httpClient,
		logger:    logger,
		listeners: make(map[int]func(*Identity)),
	}, nil
}

// OnIdentityChange registers fn and fires it immediately with the current state.
func (p *FirebaseProvider) OnIdentityChange(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	current := p.currentLocked()
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// CurrentIdentity returns a snapshot of the signed-in identity, or nil.
func (p *FirebaseProvider) CurrentIdentity() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *FirebaseProvider) currentLocked() *Identity {
	if p.sess == nil {
		return nil
	}
	ident := p.sess.identity
	return &ident
}

type signInResponse struct {
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	EmailVerified bool   `json:"emailVerified"`
}

// SignInWithEmailPassword authenticates against accounts:signInWithPassword.
func (p *FirebaseProvider) SignInWithEmailPassword(ctx context.Context, email, password string) (*Identity, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	var resp signInResponse
	if err := p.post(ctx, "/accounts:signInWithPassword", payload, &resp); err != nil {
		return nil, err
	}
	return p.install(ctx, resp)
}

// SignInWithGoogle runs the interactive Google flow and exchanges the Google
// ID token via accounts:signInWithIdp.
func (p *FirebaseProvider) SignInWithGoogle(ctx context.Context) (*Identity, error) {
	if p.cfg.GoogleToken == nil {
		return nil, errors.New("identity: google sign-in is not configured")
	}
	googleToken, err := p.cfg.GoogleToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"postBody":            "id_token=" + googleToken + "&providerId=google.com",
		"requestUri":          "http://localhost",
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}
	var resp signInResponse
	if err := p.post(ctx, "/accounts:signInWithIdp", payload, &resp); err != nil {
		return nil, err
	}
	return p.install(ctx, resp)
}

// install finalizes a sign-in: fills in account details, stores the session,
// and notifies listeners.
func (p *FirebaseProvider) install(ctx context.Context, resp signInResponse) (*Identity, error) {
	ident := Identity{
		UID:           resp.LocalID,
		Email:         resp.Email,
		DisplayName:   resp.DisplayName,
		EmailVerified: resp.EmailVerified,
	}

	// signInWithPassword omits emailVerified; accounts:lookup is authoritative.
	if looked, err := p.lookup(ctx, resp.IDToken); err != nil {
		p.logger.Warn("account lookup after sign-in failed", zap.Error(err))
	} else if looked != nil {
		ident = *looked
	}

	expiresIn, _ := strconv.Atoi(resp.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	p.mu.Lock()
	p.sess = &session{
		identity:     ident,
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, &ident)
	return &ident, nil
}

func (p *FirebaseProvider) lookup(ctx context.Context, idToken string) (*Identity, error) {
	payload := map[string]any{"idToken": idToken}
	var resp struct {
		Users []struct {
			LocalID       string `json:"localId"`
			Email         string `json:"email"`
			DisplayName   string `json:"displayName"`
			EmailVerified bool   `json:"emailVerified"`
		} `json:"users"`
	}
	if err := p.post(ctx, "/accounts:lookup", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, nil
	}
	u := resp.Users[0]
	return &Identity{
		UID:           u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
	}, nil
}

// Resume restores a session from a previously saved refresh token. The CLI
// persists the token between invocations; listeners fire once the identity
// has been re-established.
func (p *FirebaseProvider) Resume(ctx context.Context, refreshToken string) (*Identity, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrSignedOut
	}

	p.mu.Lock()
	p.sess = &session{refreshToken: refreshToken}
	p.mu.Unlock()

	idToken, err := p.refresh(ctx, refreshToken)
	if err != nil {
		p.mu.Lock()
		p.sess = nil
		p.mu.Unlock()
		return nil, err
	}

	ident, err := p.lookup(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrInvalidCredentials
	}

	p.mu.Lock()
	if p.sess != nil {
		p.sess.identity = *ident
	}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, ident)
	return ident, nil
}

// RefreshToken exposes the current refresh token for persistence, empty when
// signed out.
func (p *FirebaseProvider) RefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return ""
	}
	return p.sess.refreshToken
}

// SignOut clears the local session and notifies listeners before attempting
// any remote revocation; a failed remote call never blocks local cleanup.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	var refreshToken string
	if p.sess != nil {
		refreshToken = p.sess.refreshToken
	}
	p.sess = nil
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, nil)

	if p.cfg.Revoke != nil && refreshToken != "" {
		if err := p.cfg.Revoke(ctx, refreshToken); err != nil {
			p.logger.Warn("remote token revocation failed", zap.Error(err))
		}
	}
	return nil
}

// IDToken returns the cached bearer token, refreshing it when expired.
func (p *FirebaseProvider) IDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.sess == nil {
		p.mu.Unlock()
		return "", ErrSignedOut
	}
	sess := *p.sess
	p.mu.Unlock()

	if time.Now().Add(tokenExpirySlack).Before(sess.expiresAt) && !tokenExpired(sess.idToken) {
		return sess.idToken, nil
	}

	return p.refresh(ctx, sess.refreshToken)
}

// tokenExpired inspects the JWT exp claim without verifying the signature;
// the backend verifies, the client only decides when to refresh.
func tokenExpired(idToken string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().Add(tokenExpirySlack).After(exp.Time)
}

func (p *FirebaseProvider) refresh(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := p.cfg.TokenEndpoint + "?key=" + url.QueryEscape(p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	defer httpResp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if httpResp.StatusCode >= 400 {
		return "", classifyToolkitError(httpResp.StatusCode, raw)
	}

	var resp struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}

	expiresIn, _ := strconv.Atoi(resp.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	p.mu.Lock()
	if p.sess != nil {
		p.sess.idToken = resp.IDToken
		if resp.RefreshToken != "" {
			p.sess.refreshToken = resp.RefreshToken
		}
		p.sess.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	p.mu.Unlock()

	return resp.IDToken, nil
}

func (p *FirebaseProvider) post(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := p.cfg.SignInEndpoint + path + "?key=" + url.QueryEscape(p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return classifyToolkitError(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode identity provider response: %w", err)
		}
	}
	return nil
}

// classifyToolkitError maps Identity Toolkit error messages onto provider errors.
func classifyToolkitError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	message := envelope.Error.Message
	switch {
	case strings.HasPrefix(message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(message, "INVALID_PASSWORD"),
		strings.HasPrefix(message, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(message, "USER_DISABLED"),
		strings.HasPrefix(message, "INVALID_REFRESH_TOKEN"),
		strings.HasPrefix(message, "TOKEN_EXPIRED"):
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, message)
	}
	if message == "" {
		message = fmt.Sprintf("status %d", status)
	}
	return fmt.Errorf("identity provider error: %s", message)
}

func (p *FirebaseProvider) snapshotListeners() []func(*Identity) {
	fns := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(listeners []func(*Identity), ident *Identity) {
	for _, fn := range listeners {
		var copied *Identity
		if ident != nil {
			c := *ident
			copied = &c
		}
		fn(copied)
	}
}
