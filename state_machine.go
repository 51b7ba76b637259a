package authstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// StateMachine merges identity, token, and agreement state into the one
// authoritative AuthState. It is the sole writer; every transition runs under
// a single mutex so a SignIn and a refresher-driven expiry can never
// interleave into an inconsistent composite.
//
// Subscriber callbacks run synchronously inside the transition that produced
// the snapshot, so they observe every state exactly once and in order. They
// must not invoke state machine operations from inside the callback.
type StateMachine struct {
	mu sync.Mutex

	provider  IdentityProvider
	profiles  ProfileStore
	gate      *AgreementGate
	store     *SessionStore
	refresher *TokenRefresher
	idle      *IdleMonitor

	scheduler Scheduler
	cfg       SessionConfig
	logger    Logger
	sink      ActivitySink
	now       Clock

	state       AuthState
	snapshot    atomic.Value // AuthState
	initStarted bool

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int

	idleWarning func(remainingSeconds int)
	idleTick    func(remainingSeconds int)
}

// StateMachineOption customizes machine construction.
type StateMachineOption func(*StateMachine)

// WithStorage selects the persistence medium for the session store. Defaults
// to memory-only when omitted.
func WithStorage(storage Storage) StateMachineOption {
	return func(m *StateMachine) {
		m.store = NewSessionStore(storage)
	}
}

// WithConfig overrides the session configuration.
func WithConfig(cfg SessionConfig) StateMachineOption {
	return func(m *StateMachine) {
		cfg.normalize()
		m.cfg = cfg
	}
}

// WithScheduler injects a custom scheduler (useful for tests).
func WithScheduler(s Scheduler) StateMachineOption {
	return func(m *StateMachine) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock Clock) StateMachineOption {
	return func(m *StateMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger overrides the logger shared with the composed components.
func WithLogger(logger Logger) StateMachineOption {
	return func(m *StateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish lifecycle events.
func WithActivitySink(sink ActivitySink) StateMachineOption {
	return func(m *StateMachine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithIdleWarning observes entry into the idle warning with the countdown
// seconds, for UI display.
func WithIdleWarning(fn func(remainingSeconds int)) StateMachineOption {
	return func(m *StateMachine) {
		m.idleWarning = fn
	}
}

// WithIdleTick observes each 1-second countdown tick, for UI display.
func WithIdleTick(fn func(remainingSeconds int)) StateMachineOption {
	return func(m *StateMachine) {
		m.idleTick = fn
	}
}

// NewStateMachine wires the session store, token refresher, idle monitor, and
// agreement gate around the injected collaborators.
func NewStateMachine(provider IdentityProvider, profiles ProfileStore, backend AgreementBackend, opts ...StateMachineOption) *StateMachine {
	m := &StateMachine{
		provider:  provider,
		profiles:  profiles,
		scheduler: NewScheduler(),
		cfg:       DefaultSessionConfig(),
		logger:    defLogger{},
		sink:      noopActivitySink{},
		now:       time.Now,
		state:     AuthState{Phase: PhaseUninitialized},
		subs:      map[int]Subscriber{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.store == nil {
		m.store = NewSessionStore(nil, WithSessionStoreLogger(m.logger), WithSessionStoreClock(m.now))
	}

	m.gate = NewAgreementGate(backend, WithAgreementLogger(m.logger))

	m.refresher = NewTokenRefresher(provider, m.store, m.cfg,
		WithRefresherScheduler(m.scheduler),
		WithRefresherClock(m.now),
		WithRefresherLogger(m.logger),
		WithRefreshedHandler(m.handleTokenRefreshed),
		WithExpiredHandler(m.handleTokenExpired),
	)

	m.idle = NewIdleMonitor(m.cfg,
		WithIdleScheduler(m.scheduler),
		WithIdleLogger(m.logger),
		WithWarningHandler(m.idleWarning),
		WithTickHandler(m.idleTick),
		WithLogoutHandler(m.handleIdleLogout),
	)

	m.snapshot.Store(m.state.clone())

	return m
}

// Current returns the latest published snapshot without blocking on an
// in-flight transition.
func (m *StateMachine) Current() AuthState {
	return m.snapshot.Load().(AuthState)
}

// Subscribe registers a callback for every state transition. The current
// snapshot is replayed immediately so late subscribers never block on a
// missed event. The returned function unsubscribes.
func (m *StateMachine) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	fn(m.Current())

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// Initialize restores a persisted session if one exists. Idempotent: once
// started, subsequent calls return the current snapshot without re-running
// side effects. Always ends with Initialized set, exactly once.
func (m *StateMachine) Initialize(ctx context.Context) (AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initStarted {
		return m.state.clone(), nil
	}
	m.initStarted = true

	m.state.Phase = PhaseInitializing
	m.state.Loading = true
	m.publishLocked()

	rec, found := m.store.Load()
	if !found || rec.Token.Expired(m.now()) {
		if found {
			// Stale sessions are dropped eagerly; no profile fetch happens.
			m.store.Clear()
		}
		m.resetToUnauthenticatedLocked(nil)
		return m.state.clone(), nil
	}

	m.establishLocked(ctx, rec)
	return m.state.clone(), nil
}

// SignIn authenticates against the identity provider. On success the session
// is persisted and the same setup as Initialize runs (profile fetch,
// agreement check, refresher and idle arming). On failure the state stays
// Unauthenticated with a populated error and nothing is persisted.
func (m *StateMachine) SignIn(ctx context.Context, creds Credentials) (AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Loading = true
	m.state.Err = nil
	m.publishLocked()

	identity, tok, err := m.provider.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		var richErr *goerrors.Error
		if IsCredentialError(err) {
			richErr = ErrInvalidCredentials.WithMetadata(map[string]any{
				"email": creds.Email,
			})
		} else {
			// Transport and provider outages stay distinguishable from a
			// rejected password.
			richErr = asRichError(err, goerrors.CategoryOperation, "sign in failed")
		}
		m.state.Phase = PhaseUnauthenticated
		m.state.Identity = nil
		m.state.Token = nil
		m.state.Loading = false
		m.state.Err = richErr
		m.publishLocked()

		m.emit(ctx, ActivityEventSignInFailure, "", map[string]any{
			"email": creds.Email,
			"error": err.Error(),
		})
		return m.state.clone(), richErr
	}

	if tok.IdentityID == "" {
		tok.IdentityID = identity.ID
	}

	rec := SessionRecord{
		Identity:     identity,
		Token:        tok,
		LastActiveAt: m.now(),
	}
	m.store.Save(rec)

	m.establishLocked(ctx, rec)

	m.emit(ctx, ActivityEventSignInSuccess, identity.ID, nil)
	return m.state.clone(), nil
}

// SignOut tears the session down: cancels the refresher and idle monitor,
// clears the store, and publishes the Unauthenticated state before
// returning, so subscribers never observe a torn intermediate.
func (m *StateMachine) SignOut(ctx context.Context) AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	var identityID string
	if m.state.Identity != nil {
		identityID = m.state.Identity.ID
	}

	m.refresher.Cancel()
	m.idle.Stop()
	m.gate.Reset()

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("state machine: provider sign-out failed: %v", err)
	}

	m.store.Clear()
	m.resetToUnauthenticatedLocked(nil)

	m.emit(ctx, ActivityEventSignOut, identityID, nil)
	return m.state.clone()
}

// AcceptAgreement records acceptance of the given version for the current
// identity and updates the published agreement status without another
// backend check.
func (m *StateMachine) AcceptAgreement(ctx context.Context, version int) (AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Identity == nil {
		return m.state.clone(), ErrTokenExpired
	}

	identity := *m.state.Identity
	status, err := m.gate.Accept(ctx, identity.ID, identity.Role, version)
	if err != nil {
		m.state.Err = asRichError(err, goerrors.CategoryOperation, "agreement acceptance failed")
		m.publishLocked()
		return m.state.clone(), err
	}

	m.state.Agreement = status
	m.state.Err = nil
	m.publishLocked()

	m.emit(ctx, ActivityEventAgreementAccepted, identity.ID, map[string]any{
		"version": version,
	})
	return m.state.clone(), nil
}

// RefreshProfile refetches the profile for the current identity. A role
// change invalidates the stale agreement entry and triggers a fresh check.
func (m *StateMachine) RefreshProfile(ctx context.Context) (AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Identity == nil {
		return m.state.clone(), ErrTokenExpired
	}

	oldRole := m.state.Identity.Role
	identityID := m.state.Identity.ID

	profile, err := m.profiles.GetProfile(ctx, identityID)
	if err != nil {
		richErr := m.classifyProfileError(err)
		m.state.Err = richErr
		m.publishLocked()
		return m.state.clone(), richErr
	}

	m.applyProfileLocked(profile)

	if profile.Role != oldRole {
		m.gate.Invalidate(identityID, oldRole)
		m.checkAgreementLocked(ctx, identityID, profile.Role)
	}

	m.publishLocked()
	return m.state.clone(), nil
}

// Activity forwards a user-originated activity signal to the idle monitor and
// stamps the persisted record. Synthetic events (background fetches, polls)
// must not be wired here.
func (m *StateMachine) Activity() {
	m.idle.Activity()
	m.store.UpdateLastActive()
}

// ConfirmPresence is the explicit "stay signed in" acknowledgment for the
// idle warning.
func (m *StateMachine) ConfirmPresence() {
	m.idle.Confirm()
	m.store.UpdateLastActive()
}

// IdleState exposes the idle monitor position for UI display.
func (m *StateMachine) IdleState() IdleState {
	return m.idle.State()
}

// establishLocked runs the shared authenticated-session setup: publish the
// profile-loading phase, fetch the profile, resolve the agreement, then arm
// the refresher and the idle monitor.
func (m *StateMachine) establishLocked(ctx context.Context, rec SessionRecord) {
	identity := rec.Identity

	m.state.Phase = PhaseProfileLoading
	m.state.Identity = &identity
	m.state.Token = &rec.Token
	m.state.Err = nil
	m.publishLocked()

	profile, err := m.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		// Identity exists but the profile row is missing or unreachable.
		// Surfaced as a distinct error so the UI can offer repair; the
		// agreement stays unchecked, which keeps protected routes gated.
		m.state.Err = m.classifyProfileError(err)
		m.state.Agreement = AgreementStatus{}
	} else {
		m.applyProfileLocked(profile)
		rec.Identity = *m.state.Identity
		m.store.Save(rec)
		m.checkAgreementLocked(ctx, m.state.Identity.ID, m.state.Identity.Role)
	}

	m.state.Phase = PhaseReady
	m.state.Loading = false
	m.state.Initialized = true
	m.publishLocked()

	m.refresher.ScheduleNext(rec.Token)
	m.idle.Start()
}

func (m *StateMachine) applyProfileLocked(profile Profile) {
	identity := *m.state.Identity
	identity.Role = profile.Role
	identity.TeamID = profile.TeamID
	identity.OnboardingCompleted = profile.OnboardingCompleted
	if profile.DisplayName != "" {
		identity.DisplayName = profile.DisplayName
	}
	m.state.Identity = &identity
}

func (m *StateMachine) checkAgreementLocked(ctx context.Context, identityID string, role Role) {
	status, err := m.gate.Check(ctx, identityID, role)
	if err != nil {
		// Fail closed: an unchecked agreement never satisfies the guard.
		m.state.Agreement = AgreementStatus{}
		m.state.Err = asRichError(err, goerrors.CategoryOperation, "agreement check failed")
		return
	}
	m.state.Agreement = status
}

func (m *StateMachine) classifyProfileError(err error) *goerrors.Error {
	if goerrors.IsNotFound(err) || IsProfileNotFoundError(err) {
		return ErrProfileNotFound
	}
	return asRichError(err, goerrors.CategoryInternal, "profile fetch failed")
}

// handleTokenRefreshed publishes the atomically swapped token.
func (m *StateMachine) handleTokenRefreshed(tok TokenInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Identity == nil {
		return
	}

	m.state.Token = &tok
	m.publishLocked()

	m.emit(context.Background(), ActivityEventTokenRefreshed, tok.IdentityID, nil)
}

// handleTokenExpired runs when the refresher's two-strikes rule trips.
func (m *StateMachine) handleTokenExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Identity == nil {
		return
	}
	identityID := m.state.Identity.ID

	m.idle.Stop()
	m.gate.Reset()
	m.store.Clear()
	m.resetToUnauthenticatedLocked(ErrTokenExpired)

	m.emit(context.Background(), ActivityEventTokenExpired, identityID, nil)
}

// handleIdleLogout is the forced sign-out path from the idle monitor.
func (m *StateMachine) handleIdleLogout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Identity == nil {
		return
	}
	identityID := m.state.Identity.ID

	m.refresher.Cancel()
	m.gate.Reset()

	if err := m.provider.SignOut(context.Background()); err != nil {
		m.logger.Warn("state machine: provider sign-out failed during idle logout: %v", err)
	}

	m.store.Clear()
	m.resetToUnauthenticatedLocked(nil)

	m.emit(context.Background(), ActivityEventIdleLogout, identityID, nil)
}

func (m *StateMachine) resetToUnauthenticatedLocked(err *goerrors.Error) {
	m.state.Phase = PhaseUnauthenticated
	m.state.Identity = nil
	m.state.Token = nil
	m.state.Agreement = AgreementStatus{}
	m.state.Loading = false
	m.state.Err = err
	m.state.Initialized = true
	m.publishLocked()
}

// publishLocked recomputes the authenticated flag, stores the snapshot, and
// notifies subscribers in order. Caller holds m.mu, which is what serializes
// emission; Current readers go through the atomic snapshot instead.
func (m *StateMachine) publishLocked() {
	m.state.Authenticated = m.state.Identity != nil &&
		m.state.Token != nil &&
		!m.state.Token.Expired(m.now())

	snap := m.state.clone()
	m.snapshot.Store(snap)

	m.subMu.Lock()
	subs := make([]Subscriber, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (m *StateMachine) emit(ctx context.Context, eventType ActivityEventType, identityID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		IdentityID: identityID,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}

	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Warn("state machine: activity sink error: %v", err)
	}
}
