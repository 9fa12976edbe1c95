package jwt

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrUnsupported      = errors.New("token algorithm or key unsupported")
	ErrClaimsInvalid    = errors.New("token claims invalid")
	ErrWrongKind        = errors.New("token kind mismatch")
)

// Kind distinguishes access tokens from the signed refresh variant.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// KeySource supplies signing and verification keys. keystore.Store
// satisfies it.
type KeySource interface {
	KeyID() string
	SigningKey() *rsa.PrivateKey
	VerificationKey(kid string) (*rsa.PublicKey, bool)
}

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	// Now overrides the clock for issuance and expiry checks.
	Now func() time.Time
}

// Claims is the verified payload of a token.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Kind   Kind   `json:"type"`
	jwt.RegisteredClaims

	payload string
}

// TokenSpec describes a token to mint.
type TokenSpec struct {
	UserID  int64
	Subject string
	Role    string
	Kind    Kind
	TTL     time.Duration
}

// Manager mints and verifies RS256 tokens. Safe for concurrent use.
type Manager struct {
	keys   KeySource
	config Config
}

// NewManager validates cfg and returns a Manager bound to keys.
func NewManager(keys KeySource, cfg Config) (*Manager, error) {
	if keys == nil || keys.SigningKey() == nil {
		return nil, errors.New("jwt: key source required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	return &Manager{keys: keys, config: cfg}, nil
}

// IssueAccessToken mints an access token for the given account. The subject
// is the account email.
func (m *Manager) IssueAccessToken(userID int64, email, role string, ttl time.Duration) (string, time.Time, error) {
	return m.Issue(TokenSpec{UserID: userID, Subject: email, Role: role, Kind: KindAccess, TTL: ttl})
}

// Issue mints a token from spec and returns it with its expiry. iat is the
// current second and exp is exactly iat+TTL.
func (m *Manager) Issue(spec TokenSpec) (string, time.Time, error) {
	if spec.TTL < time.Second {
		return "", time.Time{}, errors.New("jwt: ttl must be at least one second")
	}
	if spec.TTL%time.Second != 0 {
		return "", time.Time{}, errors.New("jwt: ttl must be a whole number of seconds")
	}
	if strings.TrimSpace(spec.Subject) == "" {
		return "", time.Time{}, errors.New("jwt: subject required")
	}
	if spec.Kind != KindAccess && spec.Kind != KindRefresh {
		return "", time.Time{}, fmt.Errorf("jwt: unknown token kind %q", spec.Kind)
	}

	issuedAt := m.config.Now().Truncate(time.Second)
	expiresAt := issuedAt.Add(spec.TTL)

	claims := Claims{
		UserID: spec.UserID,
		Role:   spec.Role,
		Kind:   spec.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   spec.Subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.keys.KeyID()

	signed, err := token.SignedString(m.keys.SigningKey())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, key id and expiry of any token kind.
// A token whose exp equals the current instant is expired. Leeway applies
// to iat and nbf only; exp is never extended.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	claims := &Claims{}
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrSignatureInvalid
	}
	if !m.config.Now().Before(claims.ExpiresAtTime()) {
		return nil, ErrExpired
	}
	if claims.Subject == "" || (claims.Kind != KindAccess && claims.Kind != KindRefresh) {
		return nil, fmt.Errorf("%w: missing subject or type", ErrMalformed)
	}

	if parts := strings.Split(tokenStr, "."); len(parts) == 3 {
		claims.payload = parts[1]
	}
	return claims, nil
}

// VerifyKind is Verify plus a check that the token carries the expected kind.
func (m *Manager) VerifyKind(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	// Pinning the algorithm here rejects "none" and HMAC-with-public-key tokens
	// before any key is handed to the verifier.
	if t.Method == nil || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
		return nil, fmt.Errorf("%w: unexpected signing algorithm", ErrUnsupported)
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrUnsupported)
	}
	pub, ok := m.keys.VerificationKey(kid)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kid", ErrUnsupported)
	}
	return pub, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrClaimsInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Lookup returns a claim by its wire name. Registered and service claims are
// served from the typed fields; anything else is read from the verified
// payload.
func (c *Claims) Lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	switch name {
	case "sub":
		return c.Subject, c.Subject != ""
	case "user_id":
		return c.UserID, true
	case "role":
		return c.Role, true
	case "type":
		return string(c.Kind), true
	case "exp":
		return c.ExpiresAt, c.ExpiresAt != nil
	case "iat":
		return c.IssuedAt, c.IssuedAt != nil
	}

	if c.payload == "" {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.payload)
	if err != nil {
		return nil, false
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, false
	}
	v, ok := all[name]
	return v, ok
}
