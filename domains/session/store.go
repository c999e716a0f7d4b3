// Package session owns the process-wide auth/session state: the current
// identity, the backend application user, the selected tenant, and the
// pending-email-verification data captured during onboarding. All mutation
// goes through the Store's operations; consumers observe snapshots via
// Subscribe.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/netview-hq/netview-go/domains/identity"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Store errors.
var (
	ErrAlreadyStarted        = errors.New("session: store already started")
	ErrNoUser                = errors.New("session: no application user in session")
	ErrTenantMismatch        = errors.New("session: tenant does not belong to the current user")
	ErrNoPendingRegistration = errors.New("session: no pending registration to retry")
)

// EmailVerification is the transient registration payload captured when the
// backend blocks registration on an unverified email. It is mutually
// exclusive with a present User.
type EmailVerification struct {
	Email     string
	FirstName string
	LastName  string
	Company   *string
}

// State is the immutable snapshot handed to subscribers.
type State struct {
	Identity          *identity.Identity
	User              *backend.User
	SelectedTenant    *backend.Tenant
	Tenants           []backend.Tenant
	EmailVerification *EmailVerification
	// Loading is true only during the one-time blocking startup sync.
	Loading bool
	// Err holds the last hard, unexpected failure; expected branches
	// (not found, unauthorized, email-not-verified) never populate it.
	Err error
}

// Backend is the subset of the REST client the store depends on.
type Backend interface {
	Me(ctx context.Context) (*backend.User, error)
	Register(ctx context.Context, input backend.RegisterInput) (*backend.User, error)
	CreateTenant(ctx context.Context, input backend.CreateTenantInput) (*backend.Tenant, error)
}

// StartOptions controls the startup behavior.
type StartOptions struct {
	// PublicSurface skips all backend user syncing; used on surfaces that
	// render without a session (marketing/login equivalents).
	PublicSurface bool
}

// Store is the single shared mutable session resource. Identity-change events
// are processed in order; every backend sync is keyed to the generation of
// the identity it was started for, and stale results are discarded.
type Store struct {
	provider identity.Provider
	backend  Backend
	logger   *zap.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	subscribers map[int]func(State)
	nextSubID   int
	started     bool
	public      bool
	unsubscribe func()
	cancel      context.CancelFunc
	bgCtx       context.Context
}

// NewStore wires the store to its provider and backend client.
func NewStore(provider identity.Provider, be Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		provider:    provider,
		backend:     be,
		logger:      logger,
		subscribers: make(map[int]func(State)),
	}
}

// Start registers the single physical provider listener and, for non-public
// surfaces, performs the one-time blocking startup sync. Loading is guaranteed
// to transition to false on every exit path. The returned error is the hard
// startup failure, already recorded on the state for display.
func (s *Store) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.public = opts.PublicSurface
	if !s.public {
		s.state.Loading = true
	}
	s.bgCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()
	s.publish()

	initial := true
	s.unsubscribe = s.provider.OnIdentityChange(func(ident *identity.Identity) {
		s.mu.Lock()
		s.generation++
		gen := s.generation
		s.state.Identity = ident
		wasInitial := initial
		initial = false
		bgCtx := s.bgCtx
		s.mu.Unlock()
		s.publish()

		// The startup sync below owns the first delivery; public surfaces
		// never sync at all.
		if wasInitial || s.public {
			return
		}
		go func() {
			if err := s.syncFor(bgCtx, ident, gen); err != nil {
				s.logger.Warn("backend user sync failed", zap.Error(err))
			}
		}()
	})

	if s.public {
		return nil
	}

	defer func() {
		s.mu.Lock()
		s.state.Loading = false
		s.mu.Unlock()
		s.publish()
	}()

	s.mu.Lock()
	gen := s.generation
	ident := cloneIdentity(s.state.Identity)
	s.mu.Unlock()

	return s.syncFor(ctx, ident, gen)
}

// Close releases the provider subscription and cancels in-flight syncs.
// Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	cancel := s.cancel
	s.unsubscribe = nil
	s.cancel = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}

// Subscribe registers fn, fires it immediately with the current snapshot, and
// returns an unsubscribe function.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Sync re-runs the backend user sync for the current identity. Re-running
// with the same identity converges to the same state.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	ident := cloneIdentity(s.state.Identity)
	s.mu.Unlock()
	return s.syncFor(ctx, ident, gen)
}

// syncFor performs one backend user sync for the identity captured at
// generation gen. Results are dropped if a newer identity event has been
// processed since.
func (s *Store) syncFor(ctx context.Context, ident *identity.Identity, gen uint64) error {
	if ident == nil {
		s.applyIfCurrent(gen, func(st *State) {
			st.User = nil
			st.SelectedTenant = nil
			st.Tenants = nil
			st.EmailVerification = nil
		})
		return nil
	}

	user, err := s.backend.Me(ctx)
	switch {
	case err == nil:
		s.applyIfCurrent(gen, func(st *State) {
			installUser(st, user)
		})
		return nil

	case errors.Is(err, backend.ErrNotFound), errors.Is(err, backend.ErrUnauthorized):
		// Expected branch: the identity has no user record (or no session
		// yet). The caller drives registration separately.
		s.applyIfCurrent(gen, func(st *State) {
			st.User = nil
			st.SelectedTenant = nil
			st.Tenants = nil
		})
		return nil

	default:
		var notVerified *backend.EmailNotVerifiedError
		if errors.As(err, &notVerified) {
			s.applyIfCurrent(gen, func(st *State) {
				st.User = nil
				st.SelectedTenant = nil
				st.Tenants = nil
				st.EmailVerification = verificationFromDetails(notVerified.Details, ident)
			})
			return nil
		}

		s.applyIfCurrent(gen, func(st *State) {
			st.User = nil
			st.SelectedTenant = nil
			st.Tenants = nil
			st.Err = err
		})
		return err
	}
}

// RegisterUser provisions the application user for the current identity.
// A no-op returning the existing user when one is already in session.
func (s *Store) RegisterUser(ctx context.Context, firstName, lastName string, company *string) (*backend.User, error) {
	s.mu.Lock()
	gen := s.generation
	ident := cloneIdentity(s.state.Identity)
	existing := cloneUser(s.state.User)
	s.mu.Unlock()

	if existing != nil {
		return existing, nil
	}
	if ident == nil {
		return nil, identity.ErrSignedOut
	}

	user, err := s.backend.Register(ctx, backend.RegisterInput{
		FirstName: firstName,
		LastName:  lastName,
		Company:   company,
	})
	if err != nil {
		var notVerified *backend.EmailNotVerifiedError
		if errors.As(err, &notVerified) {
			// Recoverable: capture the registration payload so the user can
			// retry after confirming their email.
			s.applyIfCurrent(gen, func(st *State) {
				if st.EmailVerification == nil {
					st.EmailVerification = verificationFromDetails(notVerified.Details, ident)
					if st.EmailVerification.FirstName == "" {
						st.EmailVerification.FirstName = firstName
					}
					if st.EmailVerification.LastName == "" {
						st.EmailVerification.LastName = lastName
					}
					if st.EmailVerification.Company == nil {
						st.EmailVerification.Company = company
					}
				}
			})
			return nil, err
		}

		// Unrelated failure: surface it, but keep EmailVerification so the
		// user can retry without restarting onboarding.
		wrapped := fmt.Errorf("register user: %w", err)
		s.applyIfCurrent(gen, func(st *State) {
			st.Err = wrapped
		})
		return nil, wrapped
	}

	s.applyIfCurrent(gen, func(st *State) {
		installUser(st, user)
	})
	return user, nil
}

// RetryRegistration re-invokes registration from the captured
// EmailVerification payload.
func (s *Store) RetryRegistration(ctx context.Context) (*backend.User, error) {
	s.mu.Lock()
	gen := s.generation
	pending := s.state.EmailVerification
	s.mu.Unlock()

	if pending == nil {
		return nil, ErrNoPendingRegistration
	}

	user, err := s.backend.Register(ctx, backend.RegisterInput{
		FirstName: pending.FirstName,
		LastName:  pending.LastName,
		Company:   pending.Company,
	})
	if err != nil {
		if backend.IsEmailNotVerified(err) {
			// Still unverified; keep the pending payload for the next retry.
			return nil, err
		}
		wrapped := fmt.Errorf("retry registration: %w", err)
		s.applyIfCurrent(gen, func(st *State) {
			st.Err = wrapped
			st.EmailVerification = nil
		})
		return nil, wrapped
	}

	s.applyIfCurrent(gen, func(st *State) {
		installUser(st, user)
	})
	return user, nil
}

// SignOut delegates to the provider and clears all session fields. The local
// clear never depends on remote success, and repeated calls converge to the
// same empty state.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("provider sign-out failed, clearing local session anyway", zap.Error(err))
	}

	s.mu.Lock()
	s.generation++ // invalidate any in-flight sync
	s.state = State{}
	s.mu.Unlock()
	s.publish()
	return nil
}

// SetSelectedTenant selects a tenant for the session. Fails when no user is
// present or the tenant does not match the user's membership.
func (s *Store) SetSelectedTenant(t backend.Tenant) error {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.publish()
	}()

	if s.state.User == nil {
		return ErrNoUser
	}
	if s.state.User.TenantID == nil || *s.state.User.TenantID != t.ID {
		return ErrTenantMismatch
	}
	selected := t
	s.state.SelectedTenant = &selected
	return nil
}

// CreateTenant creates the organization and installs the denormalized tenant
// fields onto the session user.
func (s *Store) CreateTenant(ctx context.Context, name string, tenantID *string) (*backend.Tenant, error) {
	s.mu.Lock()
	gen := s.generation
	hasUser := s.state.User != nil
	s.mu.Unlock()

	if !hasUser {
		return nil, ErrNoUser
	}

	tenant, err := s.backend.CreateTenant(ctx, backend.CreateTenantInput{Name: name, TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.applyIfCurrent(gen, func(st *State) {
		if st.User != nil {
			id := tenant.ID
			tenantName := tenant.Name
			st.User.TenantID = &id
			st.User.TenantName = &tenantName
		}
		selected := *tenant
		st.SelectedTenant = &selected
		st.Tenants = []backend.Tenant{*tenant}
	})
	return tenant, nil
}

// LoadTenants derives the session's tenant list from the denormalized fields
// on the user record. There is no multi-tenant membership model beyond
// SuperAdmin, so the list has at most one element.
func (s *Store) LoadTenants(email string) []backend.Tenant {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.publish()
	}()

	user := s.state.User
	if user == nil || user.TenantID == nil {
		s.state.Tenants = nil
		return nil
	}

	tenant := backend.Tenant{
		ID:    *user.TenantID,
		Email: email,
	}
	if user.TenantName != nil {
		tenant.Name = *user.TenantName
	}
	s.state.Tenants = []backend.Tenant{tenant}
	return []backend.Tenant{tenant}
}

// ClearError dismisses the surfaced hard error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.state.Err = nil
	s.mu.Unlock()
	s.publish()
}

// applyIfCurrent mutates the state only when gen still matches the latest
// identity generation, then re-establishes the structural invariants and
// publishes. Stale mutations are dropped.
func (s *Store) applyIfCurrent(gen uint64, mutate func(*State)) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("dropping stale sync result", zap.Uint64("generation", gen))
		return false
	}
	mutate(&s.state)
	normalize(&s.state)
	s.mu.Unlock()
	s.publish()
	return true
}

// normalize enforces the cross-field invariants: a user requires an identity,
// the selected tenant must match the user's membership, and a present user is
// mutually exclusive with pending email verification.
func normalize(st *State) {
	if st.Identity == nil {
		st.User = nil
	}
	if st.User == nil {
		st.SelectedTenant = nil
	} else {
		st.EmailVerification = nil
		if st.SelectedTenant != nil &&
			(st.User.TenantID == nil || *st.User.TenantID != st.SelectedTenant.ID) {
			st.SelectedTenant = nil
		}
	}
}

// installUser puts a freshly fetched/registered user into the state and
// derives the tenant fields.
func installUser(st *State, user *backend.User) {
	u := *user
	st.User = &u
	st.EmailVerification = nil
	if u.TenantID != nil {
		tenant := backend.Tenant{ID: *u.TenantID, Email: u.Email}
		if u.TenantName != nil {
			tenant.Name = *u.TenantName
		}
		st.SelectedTenant = &tenant
		st.Tenants = []backend.Tenant{tenant}
	} else {
		st.SelectedTenant = nil
		st.Tenants = nil
	}
}

func verificationFromDetails(details backend.EmailNotVerifiedDetails, ident *identity.Identity) *EmailVerification {
	ev := &EmailVerification{
		Email:     details.Email,
		FirstName: details.FirstName,
		LastName:  details.LastName,
		Company:   details.Company,
	}
	if ev.Email == "" && ident != nil {
		ev.Email = ident.Email
	}
	if ev.FirstName == "" && ident != nil && ident.DisplayName != "" {
		ev.FirstName, ev.LastName = SplitDisplayName(ident.DisplayName)
	}
	return ev
}

// SplitDisplayName splits a provider display name into first/last parts.
func SplitDisplayName(name string) (first, last string) {
	first = name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return first, ""
}

func (s *Store) publish() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	fns := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *Store) snapshotLocked() State {
	snapshot := s.state
	snapshot.Identity = cloneIdentity(s.state.Identity)
	snapshot.User = cloneUser(s.state.User)
	if s.state.SelectedTenant != nil {
		t := *s.state.SelectedTenant
		snapshot.SelectedTenant = &t
	}
	if s.state.Tenants != nil {
		snapshot.Tenants = append([]backend.Tenant(nil), s.state.Tenants...)
	}
	if s.state.EmailVerification != nil {
		ev := *s.state.EmailVerification
		snapshot.EmailVerification = &ev
	}
	return snapshot
}

func cloneIdentity(ident *identity.Identity) *identity.Identity {
	if ident == nil {
		return nil
	}
	c := *ident
	return &c
}

func cloneUser(user *backend.User) *backend.User {
	if user == nil {
		return nil
	}
	c := *user
	return &c
}
