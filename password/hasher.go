package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength        = 16
	minKeyLength         = 16

	DefaultMinBytes = 10
	DefaultMaxBytes = 1024
)

var (
	ErrTooShort        = errors.New("password too short")
	ErrTooLong         = errors.New("password too long")
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinBytes    int
	MaxBytes    int
}

// DefaultConfig returns argon2id parameters of 64 MiB, three passes and two
// lanes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinBytes:    DefaultMinBytes,
		MaxBytes:    DefaultMaxBytes,
	}
}

// Hasher writes argon2id hashes and verifies both argon2id and legacy bcrypt
// hashes.
type Hasher struct {
	config Config
}

// NewHasher validates cfg against the argon2id minimums.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password: memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password: time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password: salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password: key length must be >= 16")
	case cfg.MaxBytes < cfg.MinBytes:
		return nil, errors.New("password: max length below min length")
	}
	return &Hasher{config: cfg}, nil
}

// CheckPolicy reports whether password satisfies the length bounds. Bytes are
// counted as given, without Unicode normalization.
func (h *Hasher) CheckPolicy(password string) error {
	if len(password) < h.config.MinBytes {
		return fmt.Errorf("%w: minimum %d bytes", ErrTooShort, h.config.MinBytes)
	}
	if len(password) > h.config.MaxBytes {
		return fmt.Errorf("%w: maximum %d bytes", ErrTooLong, h.config.MaxBytes)
	}
	return nil
}

// Hash returns an argon2id PHC string for password.
func (h *Hasher) Hash(password string) (string, error) {
	if err := h.CheckPolicy(password); err != nil {
		return "", err
	}
	return h.hashArgon2(password)
}

// Verify compares password with an encoded hash of either supported family.
// A mismatch is (false, nil); an unreadable hash is an error.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > h.config.MaxBytes {
		return false, nil
	}
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return verifyArgon2(password, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Hash
// after the next successful Verify: every bcrypt hash, and argon2id hashes
// weaker than the current configuration.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	if !strings.HasPrefix(encoded, argon2Prefix) {
		return false, ErrUnsupportedHash
	}
	return h.argon2Outdated(encoded)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}
