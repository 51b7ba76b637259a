package authstate

import (
	"encoding/json"
	"time"
)

// Storage keys. One serialized SessionRecord and one SessionConfig live under
// fixed keys in the persistence medium.
const (
	sessionStorageKey = "authstate:session"
	configStorageKey  = "authstate:config"
)

// Defaults for the session configuration.
const (
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultWarningLeadTime   = 30 * time.Second
	DefaultRefreshInterval   = 10 * time.Minute
	DefaultRefreshLeadTime   = 10 * time.Minute

	// minRefreshDelay floors the refresh timer once the token is inside the
	// lead window, so a nearly-expired token still gets one orderly attempt.
	minRefreshDelay = 30 * time.Second
)

// Config exposes the session tunables the components consume.
type Config interface {
	GetInactivityTimeout() time.Duration
	GetWarningLeadTime() time.Duration
	GetRefreshInterval() time.Duration
	GetRefreshLeadTime() time.Duration
}

// SessionConfig is the persisted session configuration. The zero value is not
// usable; construct with DefaultSessionConfig and override fields as needed.
type SessionConfig struct {
	InactivityTimeout time.Duration `json:"inactivity_timeout"`
	WarningLeadTime   time.Duration `json:"warning_lead_time"`
	RefreshInterval   time.Duration `json:"refresh_interval"`
	RefreshLeadTime   time.Duration `json:"refresh_lead_time"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InactivityTimeout: DefaultInactivityTimeout,
		WarningLeadTime:   DefaultWarningLeadTime,
		RefreshInterval:   DefaultRefreshInterval,
		RefreshLeadTime:   DefaultRefreshLeadTime,
	}
}

func (c SessionConfig) GetInactivityTimeout() time.Duration { return c.InactivityTimeout }
func (c SessionConfig) GetWarningLeadTime() time.Duration   { return c.WarningLeadTime }
func (c SessionConfig) GetRefreshInterval() time.Duration   { return c.RefreshInterval }
func (c SessionConfig) GetRefreshLeadTime() time.Duration   { return c.RefreshLeadTime }

// LoadSessionConfig reads the persisted configuration, falling back to
// defaults when the key is absent or unreadable.
func LoadSessionConfig(storage Storage) SessionConfig {
	cfg := DefaultSessionConfig()
	if storage == nil {
		return cfg
	}

	raw, found, err := storage.Get(configStorageKey)
	if err != nil || !found {
		return cfg
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return DefaultSessionConfig()
	}

	cfg.normalize()
	return cfg
}

// SaveSessionConfig persists the configuration under its fixed key.
func SaveSessionConfig(storage Storage, cfg SessionConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return storage.Set(configStorageKey, raw)
}

func (c *SessionConfig) normalize() {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.WarningLeadTime <= 0 || c.WarningLeadTime >= c.InactivityTimeout {
		c.WarningLeadTime = DefaultWarningLeadTime
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.RefreshLeadTime <= 0 {
		c.RefreshLeadTime = DefaultRefreshLeadTime
	}
}
