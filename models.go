package authstate

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Identity is the signed-in principal. Replaced wholesale on profile refetch,
// destroyed on sign-out.
type Identity struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	DisplayName         string `json:"display_name,omitempty"`
	Role                Role   `json:"role"`
	TeamID              string `json:"team_id,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// TokenInfo is the access/refresh credential pair and its expiry metadata.
// Exactly one TokenInfo is live per session; it is replaced atomically and
// never partially updated.
type TokenInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IdentityID   string    `json:"identity_id"`
}

func (t TokenInfo) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Expired reports whether the token's expiry instant has passed, with zero
// grace period.
func (t TokenInfo) Expired(now time.Time) bool {
	return t.IsZero() || !t.ExpiresAt.After(now)
}

func (t TokenInfo) timeUntilExpiry(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// SessionRecord is the persisted envelope. It exists if and only if the
// persistence layer considers the user authenticated; the token inside may
// still be expired.
type SessionRecord struct {
	Identity     Identity  `json:"identity"`
	Token        TokenInfo `json:"token"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// AgreementState tags where an identity stands against the required
// agreement version.
type AgreementState string

const (
	AgreementNone     AgreementState = "none"
	AgreementPending  AgreementState = "pending"
	AgreementAccepted AgreementState = "accepted"
)

// AgreementStatus is derived per (identity, role) and becomes stale whenever
// the role changes.
type AgreementStatus struct {
	RequiredVersion int            `json:"required_version"`
	AcceptedVersion int            `json:"accepted_version"`
	State           AgreementState `json:"state"`
	Checked         bool           `json:"checked"`
}

// Pending reports whether a confirmed check found an outstanding agreement.
func (s AgreementStatus) Pending() bool {
	return s.Checked && s.State == AgreementPending
}

// Satisfied reports whether the identity may use agreement-gated routes. An
// unchecked status is never satisfied: agreement checks fail closed.
func (s AgreementStatus) Satisfied() bool {
	return s.Checked && s.State != AgreementPending
}

// Phase is the coarse position of the state machine.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseInitializing    Phase = "initializing"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseProfileLoading  Phase = "profile_loading"
	PhaseReady           Phase = "ready"
)

// AuthState is the authoritative composite consumed by the UI and the
// RouteGuard. It is rebuilt in memory, never persisted, and only the
// StateMachine writes it. Subscribers receive value copies.
type AuthState struct {
	Phase         Phase
	Identity      *Identity
	Token         *TokenInfo
	Agreement     AgreementStatus
	Authenticated bool
	Initialized   bool
	Loading       bool
	Err           *goerrors.Error
}

// clone returns a snapshot safe to hand to subscribers.
func (s AuthState) clone() AuthState {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Token != nil {
		tok := *s.Token
		out.Token = &tok
	}
	return out
}
