// Package authstate implements the client-side session orchestration core for
// the Raptor esports CRM: a long-lived state machine that tracks sign-in
// status, refreshes access tokens ahead of expiry, enforces legal-agreement
// acceptance, detects user idleness, and gates route access.
//
// Session lifecycle:
//   - StateMachine is the single writer of AuthState. It composes the
//     SessionStore, TokenRefresher, IdleMonitor, and AgreementGate and is the
//     only component other subsystems observe. Subscribe replays the current
//     snapshot immediately, so late subscribers never miss a transition.
//   - TokenRefresher keeps exactly one timer armed at a time and renews the
//     access token ahead of expiry. Two consecutive refresh failures report
//     expiry upward and force the machine back to Unauthenticated.
//   - IdleMonitor watches for user activity, warns with a ticking countdown,
//     and forces sign-out when the countdown runs dry.
//
// Route gating:
//   - RouteGuard consumes AuthState snapshots and decides, per navigation,
//     whether to render, redirect, or show an interstitial. Combine it with
//     the go-router middleware in http.go to protect an application tree.
//
// External collaborators (identity provider, profile store, agreement
// backend) are narrow interfaces declared in types.go so tests can substitute
// fakes without process-wide globals.
package authstate

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
