package authstate

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported session lifecycle events.
type ActivityEventType string

const (
	ActivityEventSignInSuccess     ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure     ActivityEventType = "session.signin.failure"
	ActivityEventSignOut           ActivityEventType = "session.signout"
	ActivityEventTokenRefreshed    ActivityEventType = "session.token.refreshed"
	ActivityEventTokenExpired      ActivityEventType = "session.token.expired"
	ActivityEventIdleLogout        ActivityEventType = "session.idle.logout"
	ActivityEventAgreementAccepted ActivityEventType = "session.agreement.accepted"
)

// ActivityEvent captures audit-friendly information about a session event.
type ActivityEvent struct {
	EventType  ActivityEventType
	IdentityID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged and never block a transition.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
