package authstate

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock returns the current time. Injected so tests can freeze it.
type Clock func() time.Time

// IdentityProvider is the remote credential/session service. It is treated as
// a reliable-but-fallible point API; the only retry policy is the refresher's
// two-strikes rule.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (Identity, TokenInfo, error)
	RefreshSession(ctx context.Context, refreshToken string) (TokenInfo, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context, accessToken string) (Identity, error)
}

// ProfileStore is the database layer that owns role and team assignments.
type ProfileStore interface {
	GetProfile(ctx context.Context, identityID string) (Profile, error)
}

// Profile carries the CRM-owned attributes merged into an Identity after the
// provider authenticates it.
type Profile struct {
	DisplayName         string
	Role                Role
	TeamID              string
	OnboardingCompleted bool
}

// AgreementBackend records which legal-agreement version each role has
// accepted.
type AgreementBackend interface {
	RequiredVersion(ctx context.Context, role Role) (int, error)
	AcceptedVersion(ctx context.Context, identityID string, role Role) (int, bool, error)
	RecordAcceptance(ctx context.Context, identityID string, role Role, version int) error
}

// Storage is the synchronous key-value persistence medium backing the
// SessionStore. Implementations must not perform network I/O.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Credentials is the sign-in payload handed to the state machine.
type Credentials struct {
	Email    string
	Password string
}

// Subscriber receives every AuthState transition, including the current
// snapshot immediately upon subscribing.
type Subscriber func(AuthState)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSTATE "+newline(format), args...)
}
