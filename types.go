package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/secondary"
)

// Store is the persistence the engine needs. store/memory and
// store/postgres implement it.
type Store interface {
	account.Store
	refresh.Store
	secondary.Store
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh].
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    int64
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// RegisterResult is returned by [Engine.Register]. VerificationExpiresAt is
// zero when email verification is disabled.
type RegisterResult struct {
	UserID                int64
	Email                 string
	Status                account.Status
	VerificationExpiresAt time.Time
}
