package authstate

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-router"
)

// DecisionKind classifies what the guard wants done with a navigation.
type DecisionKind int

const (
	// DecisionRender lets the target route render.
	DecisionRender DecisionKind = iota
	// DecisionInterstitial renders a transient full-screen state.
	DecisionInterstitial
	// DecisionRedirect sends the user elsewhere, with a redirecting
	// interstitial while the navigation happens.
	DecisionRedirect
)

// Interstitial names the transient screen to show.
type Interstitial string

const (
	InterstitialInitializing   Interstitial = "initializing"
	InterstitialProfileLoading Interstitial = "profile-loading"
	InterstitialRedirecting    Interstitial = "redirecting"
	InterstitialExpired        Interstitial = "session-expired"
)

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Kind         DecisionKind
	Interstitial Interstitial
	Target       string
}

// GuardConfig is the static route table the guard consults. The allow-lists
// are configuration, not computed values.
type GuardConfig struct {
	// SignInRoute receives unauthenticated redirects.
	SignInRoute string
	// AgreementRoute is the agreement-review page.
	AgreementRoute string
	// PublicRoutes render with no gating at all. Entries ending in "/*"
	// match by prefix.
	PublicRoutes []string
	// AgreementExemptRoutes stay reachable while an agreement is pending.
	// The agreement route itself is always exempt.
	AgreementExemptRoutes []string
	// RedirectCookie persists the intended route across the sign-in
	// round trip.
	RedirectCookie string
}

// DefaultGuardConfig covers the stock application tree.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		SignInRoute:    "/login",
		AgreementRoute: "/agreement-review",
		PublicRoutes: []string{
			"/login",
			"/signup",
			"/confirm-email",
			"/password-reset",
			"/password-reset/*",
		},
		AgreementExemptRoutes: []string{
			"/logout",
			"/onboarding",
		},
		RedirectCookie: "rejected_route",
	}
}

// RouteGuard decides, per navigation, whether to render, block-and-redirect,
// or show an interstitial. It is a pure consumer of AuthState snapshots; the
// only state it keeps is the redirect debounce.
type RouteGuard struct {
	cfg    GuardConfig
	logger Logger

	mu           sync.Mutex
	lastPath     string
	lastRedirect string
}

// RouteGuardOption customizes guard construction.
type RouteGuardOption func(*RouteGuard)

func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewRouteGuard(cfg GuardConfig, opts ...RouteGuardOption) *RouteGuard {
	if cfg.SignInRoute == "" {
		cfg.SignInRoute = "/login"
	}
	if cfg.AgreementRoute == "" {
		cfg.AgreementRoute = "/agreement-review"
	}

	g := &RouteGuard{
		cfg:    cfg,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Evaluate runs the decision table in order, first match wins. Pure: no
// debounce state is consulted or mutated.
func (g *RouteGuard) Evaluate(state AuthState, path string) Decision {
	if matchRoute(g.cfg.PublicRoutes, path) {
		return Decision{Kind: DecisionRender}
	}

	if !state.Initialized {
		return Decision{Kind: DecisionInterstitial, Interstitial: InterstitialInitializing}
	}

	if !state.Authenticated {
		interstitial := InterstitialRedirecting
		if state.Err != nil && IsTokenExpiredError(state.Err) {
			interstitial = InterstitialExpired
		}
		return Decision{
			Kind:         DecisionRedirect,
			Interstitial: interstitial,
			Target:       g.cfg.SignInRoute,
		}
	}

	if state.Phase == PhaseProfileLoading {
		return Decision{Kind: DecisionInterstitial, Interstitial: InterstitialProfileLoading}
	}

	if !state.Agreement.Satisfied() && !g.agreementExempt(path) {
		return Decision{
			Kind:         DecisionRedirect,
			Interstitial: InterstitialRedirecting,
			Target:       g.cfg.AgreementRoute,
		}
	}

	return Decision{Kind: DecisionRender}
}

// Decide evaluates the navigation and applies the redirect debounce: repeated
// redirects to the same target from the same pathname are suppressed into a
// plain interstitial, and the debounce resets whenever the pathname changes
// so a legitimate later redirect is not swallowed.
func (g *RouteGuard) Decide(state AuthState, path string) (Decision, bool) {
	decision := g.Evaluate(state, path)

	g.mu.Lock()
	defer g.mu.Unlock()

	if path != g.lastPath {
		g.lastPath = path
		g.lastRedirect = ""
	}

	if decision.Kind != DecisionRedirect {
		return decision, false
	}

	if g.lastRedirect == decision.Target {
		return Decision{Kind: DecisionInterstitial, Interstitial: decision.Interstitial}, true
	}

	g.lastRedirect = decision.Target
	return decision, false
}

func (g *RouteGuard) agreementExempt(path string) bool {
	if pathMatches(g.cfg.AgreementRoute, path) {
		return true
	}
	return matchRoute(g.cfg.AgreementExemptRoutes, path)
}

func matchRoute(routes []string, path string) bool {
	for _, route := range routes {
		if pathMatches(route, path) {
			return true
		}
	}
	return false
}

func pathMatches(route, path string) bool {
	if strings.HasSuffix(route, "/*") {
		return strings.HasPrefix(path, strings.TrimSuffix(route, "*"))
	}
	return route == path
}

// StateSource is anything that can produce the latest AuthState snapshot;
// satisfied by *StateMachine.
type StateSource interface {
	Current() AuthState
}

// Middleware gates a go-router tree on the state source. Redirect decisions
// persist the intended route in a cookie so sign-in can restore it.
func (g *RouteGuard) Middleware(source StateSource, views GuardViews) router.MiddlewareFunc {
	views.setDefaults()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			path := requestPath(c)
			decision, _ := g.Decide(source.Current(), path)

			switch decision.Kind {
			case DecisionRender:
				return hf(c)
			case DecisionInterstitial:
				return c.Render(views.viewFor(decision.Interstitial), router.ViewContext{
					"interstitial": string(decision.Interstitial),
				})
			default:
				if decision.Target == g.cfg.SignInRoute {
					g.setIntendedRoute(c)
				}
				g.logger.Debug("route guard: redirecting %s to %s", path, decision.Target)

				statusCode := http.StatusSeeOther
				if c.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}
				return c.Redirect(decision.Target, statusCode)
			}
		}
	}
}

// IntendedRoute pops the persisted route, falling back to def.
func (g *RouteGuard) IntendedRoute(c router.Context, def string) string {
	r := c.Cookies(g.cfg.RedirectCookie)
	if r == "" {
		return def
	}
	g.clearIntendedRoute(c)
	return r
}

func (g *RouteGuard) setIntendedRoute(c router.Context) {
	if g.cfg.RedirectCookie == "" {
		return
	}

	c.Cookie(&router.Cookie{
		Name:     g.cfg.RedirectCookie,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) clearIntendedRoute(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     g.cfg.RedirectCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GuardViews maps interstitials to view names.
type GuardViews struct {
	Initializing   string
	ProfileLoading string
	Redirecting    string
	Expired        string
}

func (v *GuardViews) setDefaults() {
	if v.Initializing == "" {
		v.Initializing = "interstitials/initializing"
	}
	if v.ProfileLoading == "" {
		v.ProfileLoading = "interstitials/profile_loading"
	}
	if v.Redirecting == "" {
		v.Redirecting = "interstitials/redirecting"
	}
	if v.Expired == "" {
		v.Expired = "interstitials/session_expired"
	}
}

func (v GuardViews) viewFor(i Interstitial) string {
	switch i {
	case InterstitialProfileLoading:
		return v.ProfileLoading
	case InterstitialRedirecting:
		return v.Redirecting
	case InterstitialExpired:
		return v.Expired
	default:
		return v.Initializing
	}
}

func requestPath(c router.Context) string {
	url := c.OriginalURL()
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}
