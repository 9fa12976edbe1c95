// Package account defines the user record and the storage contract shared by
// the engine and the store implementations.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account not found")
	ErrExists   = errors.New("account already exists")
)

// Status is the lifecycle state of an account.
type Status uint8

const (
	StatusPendingVerification Status = iota + 1
	StatusActive
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusPendingVerification:
		return "pending_verification"
	case StatusActive:
		return "active"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// LockoutState is the failed-login bookkeeping persisted with the account.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LastFailedAt   *time.Time
}

// Zero reports whether s carries no failure history.
func (s LockoutState) Zero() bool {
	return s.FailedAttempts == 0 && s.LockedUntil == nil && s.LastFailedAt == nil
}

// Account is a registered user.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	Status       Status
	Lockout      LockoutState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is the account persistence contract. Lookups of unknown accounts
// return ErrNotFound; duplicate emails on create return ErrExists.
type Store interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByID(ctx context.Context, id int64) (Account, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	// UpdateLockout applies fn to the current lockout state while holding the
	// account exclusively, persists the result and returns it. Concurrent
	// updates of one account are serialized.
	UpdateLockout(ctx context.Context, id int64, fn func(LockoutState) LockoutState) (LockoutState, error)
}
