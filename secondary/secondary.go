package secondary

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("credential not found")
	ErrExpired         = errors.New("credential expired")
	ErrUsed            = errors.New("credential already used")
	ErrTooManyAttempts = errors.New("credential attempt limit reached")
	ErrUnavailable     = errors.New("credential store unavailable")
)

// Kind selects the credential family.
type Kind uint8

const (
	KindPasswordReset Kind = iota + 1
	KindEmailVerification
)

func (k Kind) String() string {
	switch k {
	case KindPasswordReset:
		return "password_reset"
	case KindEmailVerification:
		return "email_verification"
	default:
		return "unknown"
	}
}

// Format is how the plaintext secret is generated.
type Format uint8

const (
	// FormatToken is 256 random bits, base64url.
	FormatToken Format = iota + 1
	// FormatNumeric is a fixed-width decimal code with leading zeros kept.
	FormatNumeric
)

// Policy is the per-kind lifetime and shape.
type Policy struct {
	TTL         time.Duration
	Format      Format
	Digits      int
	MaxAttempts int
}

// DefaultPolicies returns the reset-token and verification-code policies:
// one-hour tokens, and six-digit codes valid 15 minutes with three attempts.
func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindPasswordReset:     {TTL: time.Hour, Format: FormatToken},
		KindEmailVerification: {TTL: 15 * time.Minute, Format: FormatNumeric, Digits: 6, MaxAttempts: 3},
	}
}

// Credential is a stored single-use secret. Secret is populated only on the
// value returned from Issue.
type Credential struct {
	ID         string
	UserID     int64
	Kind       Kind
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Used       bool
	Attempts   int

	Secret string
}

// EffectKind names the state change applied together with a successful
// consume.
type EffectKind uint8

const (
	EffectNone EffectKind = iota
	EffectActivateAccount
	EffectSetPasswordHash
)

// Effect is applied by the store in the same transaction that marks the
// credential used. It is skipped when the consume fails.
type Effect struct {
	Kind         EffectKind
	PasswordHash string
}

// Lookup selects the credential to consume: the newest of UserID's kind when
// UserID is set, otherwise the one whose hash matches SecretHash.
type Lookup struct {
	UserID     int64
	SecretHash string
}

// Decision is what the store must persist for the credential it found.
type Decision struct {
	IncrementAttempts bool
	MarkUsed          bool
	Err               error
}

// Store persists credentials.
type Store interface {
	// ReplaceSecondaryCredential deletes the user's unconsumed credentials of
	// the same kind and inserts c.
	ReplaceSecondaryCredential(ctx context.Context, c Credential) error
	// FindSecondaryCredential returns the newest credential of kind whose hash
	// matches, or ErrNotFound.
	FindSecondaryCredential(ctx context.Context, kind Kind, secretHash string) (Credential, error)
	// ConsumeSecondaryCredential locks the credential selected by lookup,
	// calls decide, persists the decision and, when decide reports no error,
	// applies effect; all in one transaction that commits even when the
	// decision carries an error. It returns the credential as found and the
	// decision error. ErrNotFound is returned when lookup matches nothing.
	ConsumeSecondaryCredential(ctx context.Context, kind Kind, lookup Lookup, decide func(Credential) Decision, effect Effect) (Credential, error)
}

// Manager issues, validates and consumes secondary credentials.
type Manager struct {
	store    Store
	policies map[Kind]Policy
	now      func() time.Time
}

// NewManager returns a Manager. Missing policies fall back to the defaults.
func NewManager(store Store, policies map[Kind]Policy, now func() time.Time) (*Manager, error) {
	if store == nil {
		return nil, errors.New("secondary: store required")
	}
	merged := DefaultPolicies()
	for k, p := range policies {
		if p.TTL <= 0 {
			return nil, fmt.Errorf("secondary: %s ttl must be positive", k)
		}
		if p.Format == FormatNumeric && (p.Digits < 4 || p.Digits > 10) {
			return nil, fmt.Errorf("secondary: %s digits must be between 4 and 10", k)
		}
		merged[k] = p
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, policies: merged, now: now}, nil
}

// Policy returns the effective policy for kind.
func (m *Manager) Policy(kind Kind) Policy { return m.policies[kind] }

// Issue creates a credential of kind for userID that expires after ttl,
// superseding any unconsumed credential of the same kind. A zero ttl uses
// the kind's policy.
func (m *Manager) Issue(ctx context.Context, userID int64, ttl time.Duration, kind Kind) (Credential, error) {
	policy, ok := m.policies[kind]
	if !ok {
		return Credential{}, fmt.Errorf("secondary: unknown kind %d", kind)
	}
	if ttl <= 0 {
		ttl = policy.TTL
	}

	secret, err := newSecret(policy)
	if err != nil {
		return Credential{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Credential{}, fmt.Errorf("secondary: credential id: %w", err)
	}

	now := m.now()
	c := Credential{
		ID:         id.String(),
		UserID:     userID,
		Kind:       kind,
		SecretHash: Hash(secret),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := m.store.ReplaceSecondaryCredential(ctx, c); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.Secret = secret
	return c, nil
}

// Validate reports whether secret names a live credential of kind without
// consuming it.
func (m *Manager) Validate(ctx context.Context, secret string, kind Kind) (bool, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, nil
	}
	c, err := m.store.FindSecondaryCredential(ctx, kind, Hash(secret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return m.decide(c, secret).Err == nil, nil
}

// ConsumeRequest names the credential to consume.
type ConsumeRequest struct {
	Kind Kind
	// UserID selects the user's newest credential; zero looks the secret up
	// by hash instead.
	UserID int64
	Secret string
	Effect Effect
}

// Consume marks the credential used and applies req.Effect atomically. A
// wrong secret for a user-scoped lookup counts an attempt, and that count is
// persisted even though the call fails.
func (m *Manager) Consume(ctx context.Context, req ConsumeRequest) (Credential, error) {
	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		return Credential{}, ErrNotFound
	}
	lookup := Lookup{UserID: req.UserID}
	if req.UserID == 0 {
		lookup.SecretHash = Hash(secret)
	}

	c, err := m.store.ConsumeSecondaryCredential(ctx, req.Kind, lookup, func(c Credential) Decision {
		return m.decide(c, secret)
	}, req.Effect)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired), errors.Is(err, ErrUsed), errors.Is(err, ErrTooManyAttempts):
			return c, err
		default:
			return c, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return c, nil
}

// decide checks c in the order used, expired, attempts, secret. A wrong
// secret increments attempts; the increment that reaches the cap reports
// ErrTooManyAttempts.
func (m *Manager) decide(c Credential, secret string) Decision {
	policy := m.policies[c.Kind]
	switch {
	case c.Used:
		return Decision{Err: ErrUsed}
	case !m.now().Before(c.ExpiresAt):
		return Decision{Err: ErrExpired}
	case policy.MaxAttempts > 0 && c.Attempts >= policy.MaxAttempts:
		return Decision{Err: ErrTooManyAttempts}
	}

	want, err := hex.DecodeString(c.SecretHash)
	got := sha256.Sum256([]byte(secret))
	if err != nil || subtle.ConstantTimeCompare(want, got[:]) != 1 {
		d := Decision{IncrementAttempts: true, Err: ErrNotFound}
		if policy.MaxAttempts > 0 && c.Attempts+1 >= policy.MaxAttempts {
			d.Err = ErrTooManyAttempts
		}
		return d
	}
	return Decision{MarkUsed: true}
}

// Hash returns the hex SHA-256 of a plaintext secret.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newSecret(p Policy) (string, error) {
	if p.Format == FormatNumeric {
		return NewCode(p.Digits)
	}
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("secondary: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewCode returns a uniformly random decimal code of exactly digits
// characters; leading zeros are part of the code.
func NewCode(digits int) (string, error) {
	if digits <= 0 {
		return "", errors.New("secondary: digits must be positive")
	}
	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("secondary: read random: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
