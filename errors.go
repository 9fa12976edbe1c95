package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountUnverified  = errors.New("account unverified")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountExists      = errors.New("account already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordPolicy     = errors.New("password policy violation")

	ErrTokenInvalid   = errors.New("invalid token")
	ErrRefreshInvalid = errors.New("invalid refresh token")

	ErrRateLimited = errors.New("rate limited")

	ErrResetInvalid        = errors.New("invalid or expired reset token")
	ErrVerificationInvalid = errors.New("invalid or expired verification code")

	// ErrStoreUnavailable wraps storage failures. Guarded operations fail
	// closed with it.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
	// ErrEphemeralKey is returned by Build in production mode when no key
	// material was configured.
	ErrEphemeralKey = errors.New("ephemeral signing key refused in production mode")
)

// RateLimitError reports a denied request and how long its window has left.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
