package authstate

import (
	"encoding/json"
	"sync"
	"time"
)

// SessionStore owns the persisted SessionRecord. All operations are
// synchronous and touch only the persistence medium; none of them perform
// network I/O. When the medium fails the store degrades to in-memory-only
// behavior, logging the degradation once, and keeps serving callers.
type SessionStore struct {
	mu       sync.Mutex
	storage  Storage
	memory   *SessionRecord
	degraded bool
	logger   Logger
	now      Clock
}

// SessionStoreOption customizes store construction.
type SessionStoreOption func(*SessionStore)

// WithSessionStoreLogger overrides the logger used for degradation notices.
func WithSessionStoreLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionStoreClock injects a custom clock (useful for tests).
func WithSessionStoreClock(clock Clock) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSessionStore wraps the given persistence medium. A nil storage yields a
// memory-only store, which is the documented degraded mode.
func NewSessionStore(storage Storage, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		storage: storage,
		logger:  defLogger{},
		now:     time.Now,
	}
	if storage == nil {
		s.degraded = true
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Load returns the persisted SessionRecord, or false when no session exists.
func (s *SessionStore) Load() (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return s.memoryLoad()
	}

	raw, found, err := s.storage.Get(sessionStorageKey)
	if err != nil {
		s.degrade("load", err)
		return s.memoryLoad()
	}
	if !found {
		return SessionRecord{}, false
	}

	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt record is unrecoverable; treat it as absent.
		s.logger.Warn("session store: discarding corrupt session record: %v", err)
		_ = s.storage.Delete(sessionStorageKey)
		return SessionRecord{}, false
	}

	cp := rec
	s.memory = &cp
	return rec, true
}

// Save persists the record, replacing any previous one.
func (s *SessionStore) Save(rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := rec
	s.memory = &cp

	if s.degraded {
		return
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("session store: marshal session record: %v", err)
		return
	}

	if err := s.storage.Set(sessionStorageKey, raw); err != nil {
		s.degrade("save", err)
	}
}

// Clear removes the persisted record.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = nil

	if s.degraded {
		return
	}

	if err := s.storage.Delete(sessionStorageKey); err != nil {
		s.degrade("clear", err)
	}
}

// UpdateLastActive stamps the record's activity instant with the current time.
// A no-op when no session exists.
func (s *SessionStore) UpdateLastActive() {
	s.mu.Lock()
	rec, found := s.currentLocked()
	if !found {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	rec.LastActiveAt = s.now()
	s.Save(rec)
}

// IsTokenExpired compares the stored token's expiry to the current time with
// zero grace period. Absent sessions count as expired.
func (s *SessionStore) IsTokenExpired() bool {
	s.mu.Lock()
	rec, found := s.currentLocked()
	s.mu.Unlock()

	if !found {
		return true
	}
	return rec.Token.Expired(s.now())
}

// Degraded reports whether the store has fallen back to memory-only mode.
func (s *SessionStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *SessionStore) currentLocked() (SessionRecord, bool) {
	if s.memory != nil {
		return *s.memory, true
	}
	if s.degraded {
		return SessionRecord{}, false
	}

	raw, found, err := s.storage.Get(sessionStorageKey)
	if err != nil || !found {
		return SessionRecord{}, false
	}

	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SessionRecord{}, false
	}
	cp := rec
	s.memory = &cp
	return rec, true
}

func (s *SessionStore) memoryLoad() (SessionRecord, bool) {
	if s.memory == nil {
		return SessionRecord{}, false
	}
	return *s.memory, true
}

// degrade switches to memory-only mode. Logged once; later failures are
// silent because the store never retries the broken medium.
func (s *SessionStore) degrade(op string, err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	s.logger.Warn("session store: storage unavailable during %s, continuing in memory only: %v", op, err)
}
