package authstate

import (
	"sync"
	"time"
)

// IdleState is the idle monitor's position.
type IdleState string

const (
	// IdleDisabled means no authenticated session is being watched.
	IdleDisabled IdleState = "disabled"
	// IdleActive means the user has been active within the timeout.
	IdleActive IdleState = "active"
	// IdleWarning means the warning countdown is running.
	IdleWarning IdleState = "warning"
	// IdleLoggedOut means the countdown ran dry and logout was forced.
	IdleLoggedOut IdleState = "logged_out"
)

// IdleMonitor watches user-activity signals and forces sign-out after a
// configurable quiet period. Transitions:
//
//	Active  -> Warning    after inactivityTimeout - warningLeadTime
//	Warning -> Active     only via Confirm; raw activity is ignored while
//	                      warning so residual mouse movement cannot dismiss it
//	Warning -> LoggedOut  when the countdown reaches zero
//
// Only user-originated input should be wired to Activity; the monitor never
// observes anything on its own, so background polling cannot reset it.
type IdleMonitor struct {
	mu        sync.Mutex
	scheduler Scheduler
	cfg       Config
	logger    Logger

	state       IdleState
	gen         uint64
	warnTimer   Timer
	logoutTimer Timer
	ticker      Timer
	remaining   int
	logoutFired bool

	onWarning func(remainingSeconds int)
	onTick    func(remainingSeconds int)
	onLogout  func()
}

// IdleMonitorOption customizes monitor construction.
type IdleMonitorOption func(*IdleMonitor)

func WithIdleScheduler(s Scheduler) IdleMonitorOption {
	return func(m *IdleMonitor) {
		if s != nil {
			m.scheduler = s
		}
	}
}

func WithIdleLogger(logger Logger) IdleMonitorOption {
	return func(m *IdleMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithWarningHandler observes entry into Warning with the countdown seconds.
func WithWarningHandler(fn func(remainingSeconds int)) IdleMonitorOption {
	return func(m *IdleMonitor) {
		m.onWarning = fn
	}
}

// WithTickHandler observes each 1-second countdown tick for UI display.
func WithTickHandler(fn func(remainingSeconds int)) IdleMonitorOption {
	return func(m *IdleMonitor) {
		m.onTick = fn
	}
}

// WithLogoutHandler is the forced-logout callback, invoked exactly once per
// Warning episode.
func WithLogoutHandler(fn func()) IdleMonitorOption {
	return func(m *IdleMonitor) {
		m.onLogout = fn
	}
}

func NewIdleMonitor(cfg Config, opts ...IdleMonitorOption) *IdleMonitor {
	m := &IdleMonitor{
		scheduler: NewScheduler(),
		cfg:       cfg,
		logger:    defLogger{},
		state:     IdleDisabled,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// State returns the current idle state.
func (m *IdleMonitor) State() IdleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins watching. A no-op when already watching.
func (m *IdleMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == IdleActive || m.state == IdleWarning {
		return
	}

	m.becomeActiveLocked()
}

// Stop enters Disabled and cancels all timers. A dangling timer firing after
// Stop is a no-op.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.cancelAllLocked()
	m.state = IdleDisabled
}

// Activity registers a user-activity signal. It resets the inactivity timer
// only while Active; during Warning it is deliberately ignored.
func (m *IdleMonitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != IdleActive {
		return
	}

	m.becomeActiveLocked()
}

// Confirm is the explicit "stay signed in" action. It dismisses the warning
// and restarts a full inactivity period.
func (m *IdleMonitor) Confirm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != IdleWarning {
		return
	}

	m.becomeActiveLocked()
}

func (m *IdleMonitor) becomeActiveLocked() {
	m.gen++
	m.cancelAllLocked()
	m.state = IdleActive

	quiet := m.cfg.GetInactivityTimeout() - m.cfg.GetWarningLeadTime()
	gen := m.gen
	m.warnTimer = m.scheduler.Schedule(quiet, func() { m.enterWarning(gen) })
}

func (m *IdleMonitor) enterWarning(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != IdleActive {
		m.mu.Unlock()
		return
	}

	m.warnTimer = nil
	m.state = IdleWarning
	m.logoutFired = false

	lead := m.cfg.GetWarningLeadTime()
	m.remaining = int(lead / time.Second)
	remaining := m.remaining

	// Countdown expiry and timer expiry are two redundant paths to
	// LoggedOut; the once-guard in forceLogout keeps them from double-firing.
	m.logoutTimer = m.scheduler.Schedule(lead, func() { m.forceLogout(gen) })
	if m.remaining > 0 {
		m.ticker = m.scheduler.Tick(time.Second, func() { m.tick(gen) })
	}

	onWarning := m.onWarning
	m.mu.Unlock()

	if onWarning != nil {
		onWarning(remaining)
	}
}

func (m *IdleMonitor) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != IdleWarning {
		m.mu.Unlock()
		return
	}

	m.remaining--
	remaining := m.remaining
	onTick := m.onTick
	m.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}

	if remaining <= 0 {
		m.forceLogout(gen)
	}
}

func (m *IdleMonitor) forceLogout(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != IdleWarning || m.logoutFired {
		m.mu.Unlock()
		return
	}

	m.logoutFired = true
	m.gen++
	m.cancelAllLocked()
	m.state = IdleLoggedOut
	onLogout := m.onLogout
	m.mu.Unlock()

	m.logger.Info("idle monitor: inactivity timeout reached, forcing sign-out")
	if onLogout != nil {
		onLogout()
	}
}

func (m *IdleMonitor) cancelAllLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Cancel()
		m.warnTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Cancel()
		m.logoutTimer = nil
	}
	if m.ticker != nil {
		m.ticker.Cancel()
		m.ticker = nil
	}
}
