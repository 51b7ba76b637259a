package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultRefreshTTL bounds how long a refresh token can sit unused before the
// local provider refuses to rotate it.
const defaultRefreshTTL = 30 * 24 * time.Hour

type localUser struct {
	id           string
	email        string
	displayName  string
	passwordHash string
}

type refreshGrant struct {
	identityID string
	expiresAt  time.Time
}

// LocalIdentityProvider is an in-process IdentityProvider backed by an
// in-memory user table, bcrypt password hashes, and HS256 access tokens. It
// makes the module runnable end to end and gives tests a real provider; a
// production deployment points the state machine at a remote provider
// instead.
type LocalIdentityProvider struct {
	mu     sync.Mutex
	users  map[string]*localUser // keyed by email
	grants map[string]refreshGrant
	tokens *TokenService
	now    Clock
}

// LocalIdentityProviderOption customizes provider construction.
type LocalIdentityProviderOption func(*LocalIdentityProvider)

func WithProviderClock(clock Clock) LocalIdentityProviderOption {
	return func(p *LocalIdentityProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

func NewLocalIdentityProvider(tokens *TokenService, opts ...LocalIdentityProviderOption) *LocalIdentityProvider {
	p := &LocalIdentityProvider{
		users:  map[string]*localUser{},
		grants: map[string]refreshGrant{},
		tokens: tokens,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// RegisterUser adds a user with a freshly hashed password and returns the
// assigned identity id.
func (p *LocalIdentityProvider) RegisterUser(email, password, displayName string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	p.users[email] = &localUser{
		id:           id,
		email:        email,
		displayName:  displayName,
		passwordHash: hash,
	}
	return id, nil
}

func (p *LocalIdentityProvider) SignIn(ctx context.Context, email, password string) (Identity, TokenInfo, error) {
	p.mu.Lock()
	user, ok := p.users[email]
	p.mu.Unlock()

	if !ok {
		return Identity{}, TokenInfo{}, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.passwordHash); err != nil {
		return Identity{}, TokenInfo{}, ErrInvalidCredentials
	}

	identity := Identity{
		ID:          user.id,
		Email:       user.email,
		DisplayName: user.displayName,
	}

	tok, err := p.issueToken(identity)
	if err != nil {
		return Identity{}, TokenInfo{}, err
	}

	return identity, tok, nil
}

func (p *LocalIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (TokenInfo, error) {
	now := p.now()

	p.mu.Lock()
	grant, ok := p.grants[refreshToken]
	if ok {
		// Rotation: a refresh token is single use.
		delete(p.grants, refreshToken)
	}
	p.mu.Unlock()

	if !ok || !grant.expiresAt.After(now) {
		return TokenInfo{}, ErrTokenExpired
	}

	identity, found := p.identityByID(grant.identityID)
	if !found {
		return TokenInfo{}, ErrTokenExpired
	}

	return p.issueToken(identity)
}

func (p *LocalIdentityProvider) SignOut(ctx context.Context) error {
	return nil
}

func (p *LocalIdentityProvider) CurrentUser(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := p.tokens.Validate(accessToken)
	if err != nil {
		return Identity{}, err
	}

	identity, found := p.identityByID(claims.RegisteredClaims.Subject)
	if !found {
		return Identity{}, ErrInvalidCredentials
	}
	return identity, nil
}

func (p *LocalIdentityProvider) issueToken(identity Identity) (TokenInfo, error) {
	now := p.now()

	access, expiresAt, err := p.tokens.Generate(identity, now)
	if err != nil {
		return TokenInfo{}, err
	}

	refresh := uuid.NewString()

	p.mu.Lock()
	p.grants[refresh] = refreshGrant{
		identityID: identity.ID,
		expiresAt:  now.Add(defaultRefreshTTL),
	}
	p.mu.Unlock()

	return TokenInfo{
		AccessToken:  access,
		RefreshToken: refresh,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		IdentityID:   identity.ID,
	}, nil
}

func (p *LocalIdentityProvider) identityByID(id string) (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, user := range p.users {
		if user.id == id {
			return Identity{
				ID:          user.id,
				Email:       user.email,
				DisplayName: user.displayName,
			}, true
		}
	}
	return Identity{}, false
}

// InMemoryProfileStore is a ProfileStore backed by a map; the CRM's database
// layer replaces it in production.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{profiles: map[string]Profile{}}
}

func (s *InMemoryProfileStore) SetProfile(identityID string, profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identityID] = profile
}

func (s *InMemoryProfileStore) GetProfile(ctx context.Context, identityID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[identityID]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return profile, nil
}

// InMemoryAgreementBackend is an AgreementBackend backed by maps, versioned
// per role.
type InMemoryAgreementBackend struct {
	mu       sync.RWMutex
	required map[Role]int
	accepted map[agreementKey]int
}

func NewInMemoryAgreementBackend() *InMemoryAgreementBackend {
	return &InMemoryAgreementBackend{
		required: map[Role]int{},
		accepted: map[agreementKey]int{},
	}
}

// SetRequiredVersion publishes a new required agreement version for a role.
func (b *InMemoryAgreementBackend) SetRequiredVersion(role Role, version int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.required[role] = version
}

func (b *InMemoryAgreementBackend) RequiredVersion(ctx context.Context, role Role) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.required[role], nil
}

func (b *InMemoryAgreementBackend) AcceptedVersion(ctx context.Context, identityID string, role Role) (int, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	version, ok := b.accepted[agreementKey{identityID: identityID, role: role}]
	return version, ok, nil
}

func (b *InMemoryAgreementBackend) RecordAcceptance(ctx context.Context, identityID string, role Role, version int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.accepted[agreementKey{identityID: identityID, role: role}] = version
	return nil
}
