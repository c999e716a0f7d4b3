// Package onboarding drives the multi-step tenant onboarding sequence:
// invitation check, business-email validation, email-code verification, and
// tenant creation. It sits on top of the session store; the rendering surface
// (CLI or otherwise) observes the current step and calls the user-action
// methods.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netview-hq/netview-go/domains/session"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Step identifies the wizard position.
type Step int

const (
	StepCheckInvitations Step = iota
	StepValidateEmail
	StepVerifyCode
	StepCreateTenant
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepCheckInvitations:
		return "check-invitations"
	case StepValidateEmail:
		return "validate-email"
	case StepVerifyCode:
		return "verify-code"
	case StepCreateTenant:
		return "create-tenant"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Orchestrator errors.
var (
	ErrWrongStep     = errors.New("onboarding: action not valid in the current step")
	ErrEmailRejected = errors.New("onboarding: email domain is not a business domain")
	ErrInvalidCode   = errors.New("onboarding: verification code must be 6 digits")
	ErrNotSignedIn   = errors.New("onboarding: no signed-in identity")
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Clock abstracts time so tests can drive delays and the resend cooldown.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Backend is the subset of the REST client the orchestrator calls directly.
type Backend interface {
	PendingInvitationsByEmail(ctx context.Context, email string) ([]backend.PendingInvitation, error)
	AcceptInvitation(ctx context.Context, invitationToken, email string) error
	SendVerificationCode(ctx context.Context) error
	VerifyCode(ctx context.Context, code string) error
}

// SignupData is name/company data captured on an explicit signup form; it has
// the highest priority when registration needs a name.
type SignupData struct {
	FirstName string
	LastName  string
	Company   *string
}

// Config wires an Orchestrator.
type Config struct {
	Store   *session.Store
	Backend Backend
	Clock   Clock
	Logger  *zap.Logger
	Signup  *SignupData
	// OnStep is invoked on every step transition (after the lock is released).
	OnStep func(Step)

	// AdvanceDelay is the short UI pause before automatic transitions.
	AdvanceDelay time.Duration
	// ConfirmDelay is the pause after tenant creation before completion.
	ConfirmDelay time.Duration
	// ResendCooldown gates repeated verification-code sends.
	ResendCooldown time.Duration
}

// Orchestrator is the onboarding step sequencer. Not safe to drive the same
// action concurrently from multiple goroutines, but state reads are guarded.
type Orchestrator struct {
	store   *session.Store
	backend Backend
	clock   Clock
	logger  *zap.Logger
	signup  *SignupData
	onStep  func(Step)

	advanceDelay   time.Duration
	confirmDelay   time.Duration
	resendCooldown time.Duration

	mu                 sync.Mutex
	step               Step
	emailRejected      bool
	invitationAccepted bool
	invitations        []backend.PendingInvitation
	codeSent           bool
	lastSend           time.Time
	unsubscribe        func()
}

// New builds an Orchestrator and begins watching the store for the terminal
// condition (user with a tenant) so remaining steps are short-circuited.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:          cfg.Store,
		backend:        cfg.Backend,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		signup:         cfg.Signup,
		onStep:         cfg.OnStep,
		advanceDelay:   cfg.AdvanceDelay,
		confirmDelay:   cfg.ConfirmDelay,
		resendCooldown: cfg.ResendCooldown,
		step:           StepCheckInvitations,
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.advanceDelay == 0 {
		o.advanceDelay = 1500 * time.Millisecond
	}
	if o.confirmDelay == 0 {
		o.confirmDelay = 1200 * time.Millisecond
	}
	if o.resendCooldown == 0 {
		o.resendCooldown = 60 * time.Second
	}

	// Terminal condition is checked reactively, not only at transitions:
	// a tenant appearing on the user ends the wizard from any step.
	o.unsubscribe = o.store.Subscribe(func(st session.State) {
		if st.User != nil && st.User.TenantID != nil {
			o.transition(StepDone)
		}
	})
	return o
}

// Close releases the store subscription.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	unsub := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Step returns the current step.
func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// EmailRejected reports whether business-email validation failed; the user
// must change email/provider, there is no automatic retry.
func (o *Orchestrator) EmailRejected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emailRejected
}

// Invitations returns the pending invitations found during the initial check.
func (o *Orchestrator) Invitations() []backend.PendingInvitation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]backend.PendingInvitation(nil), o.invitations...)
}

// Begin runs the invitation check and, when none exist, auto-advances through
// business-email validation. It returns the step at which user interaction is
// required (or StepDone).
func (o *Orchestrator) Begin(ctx context.Context) (Step, error) {
	if s := o.Step(); s != StepCheckInvitations {
		return s, nil
	}

	email, err := o.identityEmail()
	if err != nil {
		return o.Step(), err
	}

	invitations, err := o.backend.PendingInvitationsByEmail(ctx, email)
	if err != nil {
		// A failed lookup must not strand onboarding; proceed as if none.
		o.logger.Warn("pending invitation lookup failed", zap.Error(err))
		invitations = nil
	}

	if len(invitations) > 0 {
		o.mu.Lock()
		o.invitations = invitations
		o.mu.Unlock()
		return StepCheckInvitations, nil
	}

	if err := o.pause(ctx, o.advanceDelay); err != nil {
		return o.Step(), err
	}
	return o.validateEmail(ctx, email)
}

// AcceptInvitation consumes the invitation and jumps straight to code
// verification, permanently bypassing business-email validation for this
// session.
func (o *Orchestrator) AcceptInvitation(ctx context.Context, inv backend.PendingInvitation) error {
	if o.Step() != StepCheckInvitations {
		return ErrWrongStep
	}

	email, err := o.identityEmail()
	if err != nil {
		return err
	}

	if err := o.backend.AcceptInvitation(ctx, inv.InvitationToken, email); err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if err := o.store.Sync(ctx); err != nil {
		o.logger.Warn("sync after invitation acceptance failed", zap.Error(err))
	}

	o.mu.Lock()
	o.invitationAccepted = true
	o.mu.Unlock()

	return o.enterVerifyCode(ctx)
}

// DeclineInvitations proceeds past the invitation list into the regular flow.
func (o *Orchestrator) DeclineInvitations(ctx context.Context) (Step, error) {
	if o.Step() != StepCheckInvitations {
		return o.Step(), ErrWrongStep
	}
	email, err := o.identityEmail()
	if err != nil {
		return o.Step(), err
	}
	return o.validateEmail(ctx, email)
}

func (o *Orchestrator) validateEmail(ctx context.Context, email string) (Step, error) {
	o.transition(StepValidateEmail)

	if !IsBusinessEmail(email) {
		o.mu.Lock()
		o.emailRejected = true
		o.mu.Unlock()
		return StepValidateEmail, ErrEmailRejected
	}

	if err := o.pause(ctx, o.advanceDelay); err != nil {
		return o.Step(), err
	}
	if err := o.enterVerifyCode(ctx); err != nil {
		return o.Step(), err
	}
	return o.Step(), nil
}

// enterVerifyCode transitions to the verification step and triggers exactly
// one code send per entry.
func (o *Orchestrator) enterVerifyCode(ctx context.Context) error {
	o.mu.Lock()
	if o.emailRejected {
		o.mu.Unlock()
		return ErrEmailRejected
	}
	alreadySent := o.codeSent
	o.codeSent = true
	o.mu.Unlock()

	o.transition(StepVerifyCode)

	if alreadySent {
		return nil
	}
	if err := o.backend.SendVerificationCode(ctx); err != nil {
		o.mu.Lock()
		o.codeSent = false // allow another attempt on the next entry
		o.mu.Unlock()
		return fmt.Errorf("send verification code: %w", err)
	}
	o.mu.Lock()
	o.lastSend = o.clock.Now()
	o.mu.Unlock()
	return nil
}

// ResendIn returns the remaining cooldown before another code send is
// allowed; zero means sending is permitted.
func (o *Orchestrator) ResendIn() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSend.IsZero() {
		return 0
	}
	remaining := o.resendCooldown - o.clock.Now().Sub(o.lastSend)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Resend sends another verification code. Inside the cooldown window it is a
// no-op with no network call.
func (o *Orchestrator) Resend(ctx context.Context) error {
	if o.Step() != StepVerifyCode {
		return ErrWrongStep
	}
	if o.ResendIn() > 0 {
		return nil
	}
	if err := o.backend.SendVerificationCode(ctx); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	o.mu.Lock()
	o.lastSend = o.clock.Now()
	o.mu.Unlock()
	return nil
}

// SubmitCode verifies the 6-digit code, registers the user when absent, and
// advances to tenant creation (or completion on the invitation path).
func (o *Orchestrator) SubmitCode(ctx context.Context, code string) error {
	if o.Step() != StepVerifyCode {
		return ErrWrongStep
	}
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}

	if err := o.backend.VerifyCode(ctx, code); err != nil {
		return fmt.Errorf("verify code: %w", err)
	}

	if o.store.Snapshot().User == nil {
		first, last, company := o.registrationName()
		if _, err := o.store.RegisterUser(ctx, first, last, company); err != nil {
			return err
		}
	}
	if err := o.store.Sync(ctx); err != nil {
		o.logger.Warn("sync after code verification failed", zap.Error(err))
	}

	o.mu.Lock()
	accepted := o.invitationAccepted
	o.mu.Unlock()

	if accepted {
		o.transition(StepDone)
	} else if o.Step() != StepDone { // the reactive watcher may have finished already
		o.transition(StepCreateTenant)
	}
	return nil
}

// CreateTenant creates the organization and completes the wizard.
func (o *Orchestrator) CreateTenant(ctx context.Context, orgName string) error {
	if o.Step() != StepCreateTenant {
		return ErrWrongStep
	}

	if _, err := o.store.CreateTenant(ctx, orgName, nil); err != nil {
		return err
	}
	if err := o.store.Sync(ctx); err != nil {
		o.logger.Warn("sync after tenant creation failed", zap.Error(err))
	}

	if err := o.pause(ctx, o.confirmDelay); err != nil {
		return err
	}
	o.transition(StepDone)
	return nil
}

// registrationName resolves the name in priority order: explicit signup data,
// captured email-verification payload, provider display name, email local part.
func (o *Orchestrator) registrationName() (first, last string, company *string) {
	if o.signup != nil && o.signup.FirstName != "" {
		return o.signup.FirstName, o.signup.LastName, o.signup.Company
	}

	st := o.store.Snapshot()
	if ev := st.EmailVerification; ev != nil && ev.FirstName != "" {
		return ev.FirstName, ev.LastName, ev.Company
	}
	if st.Identity != nil {
		if st.Identity.DisplayName != "" {
			first, last = session.SplitDisplayName(st.Identity.DisplayName)
			return first, last, nil
		}
		return EmailLocalPart(st.Identity.Email), "", nil
	}
	return "", "", nil
}

func (o *Orchestrator) identityEmail() (string, error) {
	st := o.store.Snapshot()
	if st.Identity == nil {
		return "", ErrNotSignedIn
	}
	return st.Identity.Email, nil
}

func (o *Orchestrator) transition(step Step) {
	o.mu.Lock()
	if o.step == step || o.step == StepDone {
		o.mu.Unlock()
		return
	}
	// No backward navigation.
	if step < o.step {
		o.mu.Unlock()
		return
	}
	o.step = step
	cb := o.onStep
	o.mu.Unlock()

	if cb != nil {
		cb(step)
	}
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-o.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
