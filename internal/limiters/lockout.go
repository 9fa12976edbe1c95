package limiters

import (
	"time"

	"github.com/MrEthical07/authcore/account"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutConfig holds configuration for the automatic account lockout guard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutGuard computes lockout transitions. It holds no state of its own;
// callers apply the transitions through account.Store.UpdateLockout so
// concurrent failures of one account cannot lose an increment.
type LockoutGuard struct {
	config LockoutConfig
}

// NewLockoutGuard fills zero fields of cfg with the defaults.
func NewLockoutGuard(cfg LockoutConfig) LockoutGuard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	return LockoutGuard{config: cfg}
}

// Config returns the effective configuration.
func (g LockoutGuard) Config() LockoutConfig { return g.config }

// Locked reports whether s is locked at now.
func (g LockoutGuard) Locked(s account.LockoutState, now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// CanAttempt reports whether a password check may run. A lock whose
// deadline has passed no longer blocks.
func (g LockoutGuard) CanAttempt(s account.LockoutState, now time.Time) bool {
	return !g.Locked(s, now)
}

// RecordFailure returns the state after one more failed attempt. Reaching the
// threshold sets LockedUntil. A failure after an expired lock starts a fresh
// count.
func (g LockoutGuard) RecordFailure(s account.LockoutState, now time.Time) account.LockoutState {
	if s.LockedUntil != nil && !now.Before(*s.LockedUntil) {
		s = account.LockoutState{}
	}

	at := now
	s.FailedAttempts++
	s.LastFailedAt = &at
	if s.FailedAttempts >= g.config.Threshold && s.LockedUntil == nil {
		until := now.Add(g.config.Duration)
		s.LockedUntil = &until
	}
	return s
}

// RecordSuccess clears all failure history.
func (g LockoutGuard) RecordSuccess(account.LockoutState) account.LockoutState {
	return account.LockoutState{}
}

// Unlock is the administrative reset; it clears the same fields as a success.
func (g LockoutGuard) Unlock(s account.LockoutState) account.LockoutState {
	return g.RecordSuccess(s)
}

// RetryAfter returns how long s stays locked at now, or zero.
func (g LockoutGuard) RetryAfter(s account.LockoutState, now time.Time) time.Duration {
	if !g.Locked(s, now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}
