package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const secretSize = 32

var (
	ErrNotFound    = errors.New("refresh token not found")
	ErrExpired     = errors.New("refresh token expired")
	ErrRevoked     = errors.New("refresh token revoked")
	ErrUnavailable = errors.New("refresh token store unavailable")
)

// Token is a stored refresh credential. Plaintext is set only on the value
// returned from Issue or Rotate and is never persisted.
type Token struct {
	ID        string
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool

	Plaintext string
}

// Usable reports whether t may still be redeemed at now.
func (t Token) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Store persists refresh tokens by hash. Implementations return ErrNotFound
// for unknown hashes.
type Store interface {
	CreateRefreshToken(ctx context.Context, token Token) error
	GetRefreshToken(ctx context.Context, tokenHash string) (Token, error)
	// RotateRefreshToken revokes oldHash only if it is not already revoked and
	// inserts next, atomically. It reports false when the conditional revoke
	// matched nothing, in which case next is not stored.
	RotateRefreshToken(ctx context.Context, oldHash string, next Token) (bool, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error)
}

// Config defines a public type used by authcore APIs.
type Config struct {
	TTL time.Duration
	// RevokeAllOnReplay revokes every token of the user when a revoked token
	// is presented again.
	RevokeAllOnReplay bool
	Now               func() time.Time
	// OnReplay is called with the user id whenever a revoked token is
	// presented.
	OnReplay func(userID int64)
}

// Manager issues, redeems and rotates opaque refresh tokens.
type Manager struct {
	store  Store
	config Config
}

// NewManager returns a Manager over store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh: store required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh: ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, config: cfg}, nil
}

// TTL returns the configured lifetime.
func (m *Manager) TTL() time.Duration { return m.config.TTL }

// Issue stores a fresh token for userID with the configured TTL.
func (m *Manager) Issue(ctx context.Context, userID int64) (Token, error) {
	return m.IssueWithTTL(ctx, userID, m.config.TTL)
}

// IssueWithTTL stores a fresh token for userID that expires after ttl.
func (m *Manager) IssueWithTTL(ctx context.Context, userID int64, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		return Token{}, errors.New("refresh: ttl must be positive")
	}
	token, err := m.newToken(userID, ttl)
	if err != nil {
		return Token{}, err
	}
	if err := m.store.CreateRefreshToken(ctx, token.stored()); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Redeem looks up plaintext and checks it in a fixed order: unknown, then
// revoked, then expired.
func (m *Manager) Redeem(ctx context.Context, plaintext string) (Token, error) {
	if plaintext == "" {
		return Token{}, ErrNotFound
	}
	stored, err := m.store.GetRefreshToken(ctx, Hash(plaintext))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if stored.Revoked {
		m.replayed(ctx, stored.UserID)
		return Token{}, ErrRevoked
	}
	if !m.config.Now().Before(stored.ExpiresAt) {
		return Token{}, ErrExpired
	}
	return stored, nil
}

// Rotate redeems plaintext, revokes it and issues its successor. Of several
// concurrent rotations of the same token exactly one succeeds; the others
// see ErrRevoked.
func (m *Manager) Rotate(ctx context.Context, plaintext string) (Token, error) {
	current, err := m.Redeem(ctx, plaintext)
	if err != nil {
		return Token{}, err
	}

	next, err := m.newToken(current.UserID, m.config.TTL)
	if err != nil {
		return Token{}, err
	}
	swapped, err := m.store.RotateRefreshToken(ctx, current.TokenHash, next.stored())
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !swapped {
		m.replayed(ctx, current.UserID)
		return Token{}, ErrRevoked
	}
	return next, nil
}

// Revoke revokes a single token. Unknown tokens report ErrNotFound.
func (m *Manager) Revoke(ctx context.Context, plaintext string) error {
	ok, err := m.store.RevokeRefreshToken(ctx, Hash(plaintext))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RevokeAll revokes every live token of userID and returns how many changed.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := m.store.RevokeAllRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (m *Manager) replayed(ctx context.Context, userID int64) {
	if m.config.OnReplay != nil {
		m.config.OnReplay(userID)
	}
	if m.config.RevokeAllOnReplay {
		_, _ = m.store.RevokeAllRefreshTokens(ctx, userID)
	}
}

func (m *Manager) newToken(userID int64, ttl time.Duration) (Token, error) {
	plaintext, err := NewSecret()
	if err != nil {
		return Token{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Token{}, fmt.Errorf("refresh: token id: %w", err)
	}
	now := m.config.Now()
	return Token{
		ID:        id.String(),
		TokenHash: Hash(plaintext),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		Plaintext: plaintext,
	}, nil
}

func (t Token) stored() Token {
	t.Plaintext = ""
	return t
}

// NewSecret returns 256 random bits encoded as unpadded base64url.
func NewSecret() (string, error) {
	var raw [secretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("refresh: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Hash returns the hex SHA-256 of a plaintext token, the only form stored.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
