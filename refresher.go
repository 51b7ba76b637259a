package authstate

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// maxRefreshFailures is the two-strikes rule: after this many consecutive
// refresh failures the refresher stops auto-scheduling and reports expiry
// upward. It never retries indefinitely.
const maxRefreshFailures = 2

// TokenRefresher renews the access token ahead of expiry. It keeps at most
// one pending timer armed at any moment; arming a new one always cancels the
// previous one first.
type TokenRefresher struct {
	mu        sync.Mutex
	provider  IdentityProvider
	store     *SessionStore
	scheduler Scheduler
	cfg       Config
	logger    Logger
	now       Clock

	timer    Timer
	gen      uint64
	failures int

	onRefreshed func(TokenInfo)
	onExpired   func()
}

// TokenRefresherOption customizes refresher construction.
type TokenRefresherOption func(*TokenRefresher)

func WithRefresherScheduler(s Scheduler) TokenRefresherOption {
	return func(r *TokenRefresher) {
		if s != nil {
			r.scheduler = s
		}
	}
}

func WithRefresherClock(clock Clock) TokenRefresherOption {
	return func(r *TokenRefresher) {
		if clock != nil {
			r.now = clock
		}
	}
}

func WithRefresherLogger(logger Logger) TokenRefresherOption {
	return func(r *TokenRefresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRefreshedHandler observes every successful refresh with the new token.
func WithRefreshedHandler(fn func(TokenInfo)) TokenRefresherOption {
	return func(r *TokenRefresher) {
		r.onRefreshed = fn
	}
}

// WithExpiredHandler is invoked once when the two-strikes rule trips.
func WithExpiredHandler(fn func()) TokenRefresherOption {
	return func(r *TokenRefresher) {
		r.onExpired = fn
	}
}

func NewTokenRefresher(provider IdentityProvider, store *SessionStore, cfg Config, opts ...TokenRefresherOption) *TokenRefresher {
	r := &TokenRefresher{
		provider:  provider,
		store:     store,
		scheduler: NewScheduler(),
		cfg:       cfg,
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// ScheduleNext arms the refresh timer for the given token, replacing any
// previously armed timer.
func (r *TokenRefresher) ScheduleNext(tok TokenInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.cancelLocked()

	delay := r.delayFor(tok)
	gen := r.gen
	r.timer = r.scheduler.Schedule(delay, func() { r.fire(gen) })
	r.logger.Debug("token refresher: next refresh in %s", delay)
}

// RefreshNow calls the identity provider's refresh endpoint exactly once.
// On success the TokenInfo in the session store is replaced atomically; on
// failure no session state is mutated and the consecutive-failure counter
// advances. The second consecutive failure reports expiry upward.
func (r *TokenRefresher) RefreshNow(ctx context.Context) (TokenInfo, error) {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	return r.refresh(ctx, gen)
}

// refresh performs one provider round trip tagged with the generation it
// started under. If Cancel or ScheduleNext advanced the generation while the
// call was in flight, the result is discarded: no store write, no handler,
// no failure accounting.
func (r *TokenRefresher) refresh(ctx context.Context, gen uint64) (TokenInfo, error) {
	rec, found := r.store.Load()
	if !found || rec.Token.RefreshToken == "" {
		return TokenInfo{}, ErrTokenExpired
	}

	tok, err := r.provider.RefreshSession(ctx, rec.Token.RefreshToken)
	if err != nil {
		r.logger.Warn("token refresher: refresh failed: %v", err)
		r.recordFailure(gen)
		return TokenInfo{}, asRichError(err, goerrors.CategoryAuth, "token refresh failed")
	}

	if tok.IdentityID == "" {
		tok.IdentityID = rec.Identity.ID
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.logger.Debug("token refresher: discarding refresh result from cancelled cycle")
		return TokenInfo{}, ErrTokenExpired
	}
	rec.Token = tok
	r.store.Save(rec)
	r.failures = 0
	onRefreshed := r.onRefreshed
	r.mu.Unlock()

	if onRefreshed != nil {
		onRefreshed(tok)
	}

	return tok, nil
}

// Cancel clears the pending timer. Must be called before the component
// holding the refresher is discarded; a timer firing afterwards is a no-op.
func (r *TokenRefresher) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.cancelLocked()
	r.failures = 0
}

// Armed reports whether a refresh timer is currently pending.
func (r *TokenRefresher) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

func (r *TokenRefresher) cancelLocked() {
	if r.timer != nil {
		r.timer.Cancel()
		r.timer = nil
	}
}

// delayFor picks the shorter of the configured interval and the time left
// before the lead window opens, floored at minRefreshDelay once the token is
// inside the lead window.
func (r *TokenRefresher) delayFor(tok TokenInfo) time.Duration {
	until := tok.timeUntilExpiry(r.now())
	lead := r.cfg.GetRefreshLeadTime()

	if until <= lead {
		return minRefreshDelay
	}

	delay := until - lead
	if interval := r.cfg.GetRefreshInterval(); interval < delay {
		delay = interval
	}
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	return delay
}

func (r *TokenRefresher) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	tok, err := r.refresh(context.Background(), gen)
	if err != nil {
		r.mu.Lock()
		if gen == r.gen && r.failures < maxRefreshFailures {
			r.timer = r.scheduler.Schedule(minRefreshDelay, func() { r.fire(gen) })
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	stale := gen != r.gen
	r.mu.Unlock()
	if stale {
		return
	}

	// Self-perpetuating schedule: a successful refresh immediately re-arms.
	r.ScheduleNext(tok)
}

func (r *TokenRefresher) recordFailure(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.failures++
	expired := r.failures >= maxRefreshFailures
	var onExpired func()
	if expired {
		r.gen++
		r.cancelLocked()
		onExpired = r.onExpired
	}
	r.mu.Unlock()

	if onExpired != nil {
		r.logger.Info("token refresher: %d consecutive failures, reporting session expired", maxRefreshFailures)
		onExpired()
	}
}
