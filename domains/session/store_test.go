package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netview-hq/netview-go/domains/identity"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// fakeProvider implements identity.Provider with a controllable listener.
type fakeProvider struct {
	mu        sync.Mutex
	current   *identity.Identity
	listeners []func(*identity.Identity)
	signOutFn func(ctx context.Context) error
}

func (f *fakeProvider) OnIdentityChange(fn func(*identity.Identity)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	current := f.current
	f.mu.Unlock()
	fn(current)
	return func() {}
}

func (f *fakeProvider) CurrentIdentity() *identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// emit simulates a provider-side identity change.
func (f *fakeProvider) emit(ident *identity.Identity) {
	f.mu.Lock()
	f.current = ident
	listeners := append(([]func(*identity.Identity))(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(ident)
	}
}

func (f *fakeProvider) SignInWithEmailPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) SignInWithGoogle(ctx context.Context) (*identity.Identity, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		if err := f.signOutFn(ctx); err != nil {
			return err
		}
	}
	f.emit(nil)
	return nil
}

func (f *fakeProvider) IDToken(ctx context.Context) (string, error) {
	return "token", nil
}

// fakeBackend implements Backend with function fields.
type fakeBackend struct {
	meFn           func(ctx context.Context) (*backend.User, error)
	registerFn     func(ctx context.Context, input backend.RegisterInput) (*backend.User, error)
	createTenantFn func(ctx context.Context, input backend.CreateTenantInput) (*backend.Tenant, error)
}

func (f *fakeBackend) Me(ctx context.Context) (*backend.User, error) {
	if f.meFn == nil {
		return nil, backend.ErrNotFound
	}
	return f.meFn(ctx)
}

func (f *fakeBackend) Register(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
	return f.registerFn(ctx, input)
}

func (f *fakeBackend) CreateTenant(ctx context.Context, input backend.CreateTenantInput) (*backend.Tenant, error) {
	return f.createTenantFn(ctx, input)
}

func testIdentity() *identity.Identity {
	return &identity.Identity{
		UID:           "uid-1",
		Email:         "jane.doe@acme.io",
		DisplayName:   "Jane Doe",
		EmailVerified: true,
	}
}

func testUser(tenantID *string) *backend.User {
	u := &backend.User{
		ID:        "user-1",
		Email:     "jane.doe@acme.io",
		FirstName: "Jane",
		LastName:  "Doe",
		Role:      "owner",
		TenantID:  tenantID,
	}
	if tenantID != nil {
		name := "Acme Inc"
		u.TenantName = &name
	}
	return u
}

func strPtr(s string) *string { return &s }

func TestStartBlockingSyncInstallsUser(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	state := store.Snapshot()
	require.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	require.NotNil(t, state.User)
	require.Equal(t, "user-1", state.User.ID)
	require.NotNil(t, state.SelectedTenant)
	require.Equal(t, "t-1", state.SelectedTenant.ID)
	require.Len(t, state.Tenants, 1)
}

func TestStartLoadingClearsOnFailure(t *testing.T) {
	t.Parallel()

	hardErr := errors.New("backend exploded")
	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, hardErr
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	err := store.Start(context.Background(), StartOptions{})
	require.ErrorIs(t, err, hardErr)

	state := store.Snapshot()
	// Loading transitions to false exactly once, even on the failure path.
	require.False(t, state.Loading)
	require.ErrorIs(t, state.Err, hardErr)
	require.Nil(t, state.User)
}

func TestStartPublicSurfaceNeverSyncs(t *testing.T) {
	t.Parallel()

	var meCalls int
	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			meCalls++
			return testUser(nil), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{PublicSurface: true}))
	provider.emit(testIdentity())

	require.Zero(t, meCalls)
	state := store.Snapshot()
	require.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	require.Nil(t, state.User)
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	store := NewStore(provider, &fakeBackend{}, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{}))
	require.ErrorIs(t, store.Start(context.Background(), StartOptions{}), ErrAlreadyStarted)
}

func TestSignedOutIdentityClearsWithoutNetwork(t *testing.T) {
	t.Parallel()

	var meCalls int
	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			meCalls++
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{}))
	require.Equal(t, 1, meCalls)

	provider.emit(nil)
	waitFor(t, store, func(st State) bool { return st.Identity == nil })

	state := store.Snapshot()
	require.Nil(t, state.User)
	require.Nil(t, state.SelectedTenant)
	require.Nil(t, state.Tenants)
	require.Nil(t, state.EmailVerification)
	// Clearing on sign-out must not hit the backend.
	require.Equal(t, 1, meCalls)
}

func TestStaleSyncResultIsDropped(t *testing.T) {
	t.Parallel()

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{}
	be := &fakeBackend{}

	userA := testUser(strPtr("t-A"))
	userB := testUser(strPtr("t-B"))
	userB.ID = "user-2"

	var call int
	var mu sync.Mutex
	be.meFn = func(ctx context.Context) (*backend.User, error) {
		mu.Lock()
		call++
		current := call
		mu.Unlock()
		if current == 1 {
			close(slowStarted)
			<-release // first sync finishes after the second
			return userA, nil
		}
		return userB, nil
	}

	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	provider.emit(&identity.Identity{UID: "a", Email: "a@acme.io"})
	<-slowStarted
	provider.emit(&identity.Identity{UID: "b", Email: "b@acme.io"})

	waitFor(t, store, func(st State) bool {
		return st.User != nil && st.User.ID == "user-2"
	})

	close(release)
	// Give the stale goroutine a chance to (wrongly) apply.
	time.Sleep(50 * time.Millisecond)

	state := store.Snapshot()
	require.Equal(t, "user-2", state.User.ID)
	require.Equal(t, "t-B", *state.User.TenantID)
}

func TestSyncEmailNotVerifiedCapturesPayload(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{Details: backend.EmailNotVerifiedDetails{
				Email:     "jane.doe@acme.io",
				FirstName: "Jane",
				LastName:  "Doe",
			}}
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	state := store.Snapshot()
	require.Nil(t, state.User)
	require.NotNil(t, state.EmailVerification)
	require.Equal(t, "jane.doe@acme.io", state.EmailVerification.Email)
	// Expected branch, not an error.
	require.NoError(t, state.Err)
}

func TestSyncEmailNotVerifiedFallsBackToIdentity(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{}
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()

	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	ev := store.Snapshot().EmailVerification
	require.NotNil(t, ev)
	require.Equal(t, "jane.doe@acme.io", ev.Email)
	require.Equal(t, "Jane", ev.FirstName)
	require.Equal(t, "Doe", ev.LastName)
}

func TestRegisterUserIdempotent(t *testing.T) {
	t.Parallel()

	var registerCalls int
	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(nil), nil
		},
		registerFn: func(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
			registerCalls++
			return testUser(nil), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	user, err := store.RegisterUser(context.Background(), "Jane", "Doe", nil)
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
	require.Zero(t, registerCalls, "registration must not re-run for an existing user")
}

func TestRegisterUserEmailNotVerified(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, backend.ErrNotFound
		},
		registerFn: func(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{Details: backend.EmailNotVerifiedDetails{
				Email: "jane.doe@acme.io",
			}}
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.RegisterUser(context.Background(), "Jane", "Doe", strPtr("Acme"))
	require.True(t, backend.IsEmailNotVerified(err))

	state := store.Snapshot()
	require.NotNil(t, state.EmailVerification)
	require.Equal(t, "Jane", state.EmailVerification.FirstName)
	require.Equal(t, "Doe", state.EmailVerification.LastName)
	require.NotNil(t, state.EmailVerification.Company)
	require.NoError(t, state.Err)
}

func TestRegisterUserUnrelatedFailureKeepsVerification(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	first := true
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{Details: backend.EmailNotVerifiedDetails{
				Email: "jane.doe@acme.io",
			}}
		},
		registerFn: func(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
			if first {
				first = false
				return nil, &backend.APIError{Status: 500, Message: "boom"}
			}
			return testUser(nil), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.RegisterUser(context.Background(), "Jane", "Doe", nil)
	require.Error(t, err)

	state := store.Snapshot()
	require.Error(t, state.Err)
	// The captured payload survives unrelated failures so the user can retry.
	require.NotNil(t, state.EmailVerification)
}

func TestRetryRegistrationWithoutPending(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	store := NewStore(provider, &fakeBackend{}, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.RetryRegistration(context.Background())
	require.ErrorIs(t, err, ErrNoPendingRegistration)
}

func TestRetryRegistrationStillUnverifiedKeepsPayload(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{Details: backend.EmailNotVerifiedDetails{
				Email:     "jane.doe@acme.io",
				FirstName: "Jane",
			}}
		},
		registerFn: func(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{}
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.RetryRegistration(context.Background())
	require.True(t, backend.IsEmailNotVerified(err))
	require.NotNil(t, store.Snapshot().EmailVerification)
}

func TestRetryRegistrationUnrelatedFailureClearsPayload(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return nil, &backend.EmailNotVerifiedError{Details: backend.EmailNotVerifiedDetails{
				Email: "jane.doe@acme.io",
			}}
		},
		registerFn: func(ctx context.Context, input backend.RegisterInput) (*backend.User, error) {
			return nil, &backend.APIError{Status: 500, Message: "boom"}
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.RetryRegistration(context.Background())
	require.Error(t, err)

	state := store.Snapshot()
	require.Error(t, state.Err)
	require.Nil(t, state.EmailVerification)
}

func TestSignOutIdempotent(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	require.NoError(t, store.SignOut(context.Background()))
	first := store.Snapshot()
	require.Nil(t, first.Identity)
	require.Nil(t, first.User)

	// A second sign-out converges to the same empty state.
	require.NoError(t, store.SignOut(context.Background()))
	second := store.Snapshot()
	require.Equal(t, first, second)
}

func TestSignOutClearsLocallyOnProviderFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		current:   testIdentity(),
		signOutFn: func(ctx context.Context) error { return errors.New("network down") },
	}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	require.NoError(t, store.SignOut(context.Background()))
	state := store.Snapshot()
	require.Nil(t, state.User)
	require.Nil(t, state.SelectedTenant)
}

func TestSetSelectedTenant(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	require.NoError(t, store.SetSelectedTenant(backend.Tenant{ID: "t-1", Name: "Acme Inc"}))
	require.ErrorIs(t, store.SetSelectedTenant(backend.Tenant{ID: "other"}), ErrTenantMismatch)

	require.NoError(t, store.SignOut(context.Background()))
	require.ErrorIs(t, store.SetSelectedTenant(backend.Tenant{ID: "t-1"}), ErrNoUser)
}

func TestCreateTenantInstallsDenormalizedFields(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(nil), nil
		},
		createTenantFn: func(ctx context.Context, input backend.CreateTenantInput) (*backend.Tenant, error) {
			require.Equal(t, "Acme Inc", input.Name)
			return &backend.Tenant{ID: "t-9", Name: input.Name}, nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	tenant, err := store.CreateTenant(context.Background(), "Acme Inc", nil)
	require.NoError(t, err)
	require.Equal(t, "t-9", tenant.ID)

	state := store.Snapshot()
	require.NotNil(t, state.User.TenantID)
	require.Equal(t, "t-9", *state.User.TenantID)
	require.Equal(t, "Acme Inc", *state.User.TenantName)
	require.Equal(t, "t-9", state.SelectedTenant.ID)
	require.Len(t, state.Tenants, 1)
}

func TestCreateTenantRequiresUser(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	store := NewStore(provider, &fakeBackend{}, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	_, err := store.CreateTenant(context.Background(), "Acme Inc", nil)
	require.ErrorIs(t, err, ErrNoUser)
}

func TestLoadTenantsDerivesFromUser(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{current: testIdentity()}
	be := &fakeBackend{
		meFn: func(ctx context.Context) (*backend.User, error) {
			return testUser(strPtr("t-1")), nil
		},
	}
	store := NewStore(provider, be, nil)
	defer store.Close()
	require.NoError(t, store.Start(context.Background(), StartOptions{}))

	tenants := store.LoadTenants("jane.doe@acme.io")
	require.Len(t, tenants, 1)
	require.Equal(t, "t-1", tenants[0].ID)
	require.Equal(t, "Acme Inc", tenants[0].Name)
	require.Equal(t, "jane.doe@acme.io", tenants[0].Email)
}

func TestSubscribeFiresImmediatelyAndUnsubscribes(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	store := NewStore(provider, &fakeBackend{}, nil)
	defer store.Close()

	var calls int
	unsubscribe := store.Subscribe(func(State) { calls++ })
	require.Equal(t, 1, calls)

	store.ClearError()
	require.Equal(t, 2, calls)

	unsubscribe()
	store.ClearError()
	require.Equal(t, 2, calls)
}

func TestSplitDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Q Doe", "Jane Q", "Doe"},
		{"Jane", "Jane", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitDisplayName(tt.name)
		require.Equal(t, tt.first, first)
		require.Equal(t, tt.last, last)
	}
}

// waitFor polls the snapshot until cond holds or the deadline expires.
func waitFor(t *testing.T, store *Store, cond func(State) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(store.Snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
