package authstate_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"

	authstate "github.com/raptorhq/go-authstate"
)

// MockIdentityProvider implements authstate.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, email, password string) (authstate.Identity, authstate.TokenInfo, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(authstate.Identity), args.Get(1).(authstate.TokenInfo), args.Error(2)
}

func (m *MockIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (authstate.TokenInfo, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(authstate.TokenInfo), args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) CurrentUser(ctx context.Context, accessToken string) (authstate.Identity, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(authstate.Identity), args.Error(1)
}

// MockProfileStore implements authstate.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(ctx context.Context, identityID string) (authstate.Profile, error) {
	args := m.Called(ctx, identityID)
	return args.Get(0).(authstate.Profile), args.Error(1)
}

// MockAgreementBackend implements authstate.AgreementBackend
type MockAgreementBackend struct {
	mock.Mock
}

func (m *MockAgreementBackend) RequiredVersion(ctx context.Context, role authstate.Role) (int, error) {
	args := m.Called(ctx, role)
	return args.Int(0), args.Error(1)
}

func (m *MockAgreementBackend) AcceptedVersion(ctx context.Context, identityID string, role authstate.Role) (int, bool, error) {
	args := m.Called(ctx, identityID, role)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockAgreementBackend) RecordAcceptance(ctx context.Context, identityID string, role authstate.Role, version int) error {
	args := m.Called(ctx, identityID, role, version)
	return args.Error(0)
}

// failingStorage errors on every operation, to exercise degradation.
type failingStorage struct{}

func (failingStorage) Get(string) ([]byte, bool, error)  { return nil, false, errors.New("io error") }
func (failingStorage) Set(string, []byte) error          { return errors.New("io error") }
func (failingStorage) Delete(string) error               { return errors.New("io error") }

// recordingLogger counts log lines per level.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(format string, args ...any) {}
func (l *recordingLogger) Info(format string, args ...any)  {}

func (l *recordingLogger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, format)
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, format)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// fakeClock is a manually advanced clock shared with manualScheduler.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type manualEntry struct {
	at        time.Time
	interval  time.Duration
	fn        func()
	repeating bool
	cancelled bool
	sched     *manualScheduler
}

func (e *manualEntry) Cancel() bool {
	e.sched.mu.Lock()
	defer e.sched.mu.Unlock()

	if e.cancelled {
		return false
	}
	e.cancelled = true
	return true
}

// manualScheduler fires timers deterministically as the fake clock advances.
type manualScheduler struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries []*manualEntry
}

func newManualScheduler(clock *fakeClock) *manualScheduler {
	return &manualScheduler{clock: clock}
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) authstate.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &manualEntry{at: s.clock.Now().Add(d), fn: fn, sched: s}
	s.entries = append(s.entries, e)
	return e
}

func (s *manualScheduler) Tick(interval time.Duration, fn func()) authstate.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &manualEntry{
		at:        s.clock.Now().Add(interval),
		interval:  interval,
		fn:        fn,
		repeating: true,
		sched:     s,
	}
	s.entries = append(s.entries, e)
	return e
}

// pending counts armed, uncancelled one-shot timers.
func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if !e.cancelled && !e.repeating {
			n++
		}
	}
	return n
}

// advance moves the clock forward by d, firing due timers in order.
func (s *manualScheduler) advance(d time.Duration) {
	target := s.clock.Now().Add(d)

	for {
		e := s.nextDue(target)
		if e == nil {
			break
		}

		s.clock.set(e.at)
		e.fn()
	}

	s.clock.set(target)
}

func (s *manualScheduler) nextDue(target time.Time) *manualEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*manualEntry, 0)
	for _, e := range s.entries {
		if !e.cancelled && !e.at.After(target) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil
	}

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	e := due[0]

	if e.repeating {
		e.at = e.at.Add(e.interval)
	} else {
		e.cancelled = true
	}

	return e
}

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
