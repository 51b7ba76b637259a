package authstate

import (
	"context"
	"sync"
)

type agreementKey struct {
	identityID string
	role       Role
}

// AgreementGate answers whether an identity must accept a new agreement
// version. Backend results are cached per (identity, role) for the session;
// a role change invalidates the old role's entry. Check failures are never
// treated as "agreement satisfied".
type AgreementGate struct {
	mu      sync.Mutex
	backend AgreementBackend
	cache   map[agreementKey]AgreementStatus
	logger  Logger
}

// AgreementGateOption customizes gate construction.
type AgreementGateOption func(*AgreementGate)

func WithAgreementLogger(logger Logger) AgreementGateOption {
	return func(g *AgreementGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewAgreementGate(backend AgreementBackend, opts ...AgreementGateOption) *AgreementGate {
	g := &AgreementGate{
		backend: backend,
		cache:   map[agreementKey]AgreementStatus{},
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Check resolves the agreement status for the identity/role pair, issuing at
// most one backend round trip per pair until Accept or Invalidate.
func (g *AgreementGate) Check(ctx context.Context, identityID string, role Role) (AgreementStatus, error) {
	key := agreementKey{identityID: identityID, role: role}

	g.mu.Lock()
	if status, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return status, nil
	}
	g.mu.Unlock()

	required, err := g.backend.RequiredVersion(ctx, role)
	if err != nil {
		g.logger.Warn("agreement gate: required-version lookup failed: %v", err)
		return AgreementStatus{}, ErrAgreementCheck
	}

	status := AgreementStatus{RequiredVersion: required, Checked: true}

	if required == 0 {
		status.State = AgreementNone
		g.put(key, status)
		return status, nil
	}

	accepted, found, err := g.backend.AcceptedVersion(ctx, identityID, role)
	if err != nil {
		g.logger.Warn("agreement gate: accepted-version lookup failed: %v", err)
		return AgreementStatus{}, ErrAgreementCheck
	}

	switch {
	case !found:
		status.State = AgreementPending
	case accepted >= required:
		status.AcceptedVersion = accepted
		status.State = AgreementAccepted
	default:
		status.AcceptedVersion = accepted
		status.State = AgreementPending
	}

	g.put(key, status)
	return status, nil
}

// Accept records acceptance of the given version. On success the cached
// status flips to accepted without another backend round trip; on failure the
// cache is untouched and the error is surfaced.
func (g *AgreementGate) Accept(ctx context.Context, identityID string, role Role, version int) (AgreementStatus, error) {
	if err := g.backend.RecordAcceptance(ctx, identityID, role, version); err != nil {
		g.logger.Warn("agreement gate: record acceptance failed: %v", err)
		return AgreementStatus{}, ErrAgreementAccept
	}

	key := agreementKey{identityID: identityID, role: role}

	g.mu.Lock()
	status, ok := g.cache[key]
	if !ok {
		status = AgreementStatus{RequiredVersion: version}
	}
	status.AcceptedVersion = version
	status.Checked = true
	if version >= status.RequiredVersion {
		status.State = AgreementAccepted
	} else {
		status.State = AgreementPending
	}
	g.cache[key] = status
	g.mu.Unlock()

	return status, nil
}

// Invalidate drops the cached entry for a pair, forcing the next Check to hit
// the backend. Called when an identity's role changes.
func (g *AgreementGate) Invalidate(identityID string, role Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, agreementKey{identityID: identityID, role: role})
}

// Reset drops the whole cache; used on sign-out.
func (g *AgreementGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = map[agreementKey]AgreementStatus{}
}

func (g *AgreementGate) put(key agreementKey, status AgreementStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = status
}
