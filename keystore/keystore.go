package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/jwks"
)

// DefaultKeyBits is the RSA modulus size used for generated keys and the
// minimum accepted for configured keys.
const DefaultKeyBits = 2048

var (
	ErrPartialKeyConfig  = errors.New("keystore: private and public key must be configured together")
	ErrInvalidPrivateKey = errors.New("keystore: invalid private key")
	ErrInvalidPublicKey  = errors.New("keystore: invalid public key")
	ErrKeyMismatch       = errors.New("keystore: public key does not match private key")
	ErrWeakKey           = errors.New("keystore: rsa key below 2048 bits")
	ErrSelfTestFailed    = errors.New("keystore: self-test failed")
)

// Config carries the configured key material. Both keys accept PEM text
// (literal "\n" escapes are honoured, as env files often carry them) or
// base64-encoded DER.
type Config struct {
	// PrivateKey is PKCS#8, or legacy PKCS#1 which is converted on load.
	PrivateKey string
	// PublicKey is an X.509 SubjectPublicKeyInfo.
	PublicKey string
	// KeyID overrides the derived RFC 7638 thumbprint.
	KeyID string
}

// KeyPair is the active signing pair.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	KeyID      string
}

// Store holds the active key pair. It is immutable after Load and safe for
// concurrent use.
type Store struct {
	pair      KeyPair
	ephemeral bool
}

// Load builds a Store from cfg. With no keys configured it generates a fresh
// pair and marks the store ephemeral; with exactly one key configured it
// fails. Every returned store has passed SelfTest.
func Load(cfg Config) (*Store, error) {
	privText := strings.TrimSpace(cfg.PrivateKey)
	pubText := strings.TrimSpace(cfg.PublicKey)

	var (
		store *Store
		err   error
	)
	switch {
	case privText == "" && pubText == "":
		store, err = Generate(DefaultKeyBits, cfg.KeyID)
	case privText == "" || pubText == "":
		return nil, ErrPartialKeyConfig
	default:
		store, err = parse(privText, pubText, cfg.KeyID)
	}
	if err != nil {
		return nil, err
	}

	if err := SelfTest(store); err != nil {
		return nil, err
	}
	return store, nil
}

// Generate creates an ephemeral store with a new RSA key of the given size.
func Generate(bits int, keyID string) (*Store, error) {
	if bits < DefaultKeyBits {
		return nil, ErrWeakKey
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate rsa key: %w", err)
	}
	return newStore(key, &key.PublicKey, keyID, true), nil
}

func parse(privText, pubText, keyID string) (*Store, error) {
	privDER, privType, err := decodeKeyText(privText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	priv, err := parsePrivateKey(privDER, privType)
	if err != nil {
		return nil, err
	}

	pubDER, pubType, err := decodeKeyText(pubText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, err := parsePublicKey(pubDER, pubType)
	if err != nil {
		return nil, err
	}

	if priv.N.BitLen() < DefaultKeyBits {
		return nil, ErrWeakKey
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, ErrKeyMismatch
	}
	return newStore(priv, pub, keyID, false), nil
}

func newStore(priv *rsa.PrivateKey, pub *rsa.PublicKey, keyID string, ephemeral bool) *Store {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = jwks.Thumbprint(pub)
	}
	return &Store{
		pair:      KeyPair{PrivateKey: priv, PublicKey: pub, KeyID: keyID},
		ephemeral: ephemeral,
	}
}

func parsePrivateKey(der []byte, pemType string) (*rsa.PrivateKey, error) {
	if pemType == "RSA PRIVATE KEY" || isPKCS1(der) {
		wrapped, err := WrapPKCS1(der)
		if err != nil {
			return nil, err
		}
		der = wrapped
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrInvalidPrivateKey, key)
	}
	return rsaKey, nil
}

// isPKCS1 reports whether der parses as a bare PKCS#1 RSAPrivateKey, which is
// how unlabelled base64 legacy keys are told apart from PKCS#8.
func isPKCS1(der []byte) bool {
	if _, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return false
	}
	_, err := x509.ParsePKCS1PrivateKey(der)
	return err == nil
}

func parsePublicKey(der []byte, pemType string) (*rsa.PublicKey, error) {
	if pemType != "" && pemType != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrInvalidPublicKey, pemType)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrInvalidPublicKey, key)
	}
	return rsaKey, nil
}

func decodeKeyText(text string) ([]byte, string, error) {
	text = strings.ReplaceAll(text, `\n`, "\n")
	if strings.HasPrefix(text, "-----BEGIN") {
		block, _ := pem.Decode([]byte(text))
		if block == nil {
			return nil, "", errors.New("malformed PEM block")
		}
		return block.Bytes, block.Type, nil
	}

	compact := strings.Join(strings.Fields(text), "")
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return der, "", nil
}

// CurrentKeyPair returns the active signing pair.
func (s *Store) CurrentKeyPair() KeyPair { return s.pair }

// KeyID returns the identifier stamped into token headers.
func (s *Store) KeyID() string { return s.pair.KeyID }

// PublicKey returns the active verification key.
func (s *Store) PublicKey() *rsa.PublicKey { return s.pair.PublicKey }

// SigningKey returns the active private key.
func (s *Store) SigningKey() *rsa.PrivateKey { return s.pair.PrivateKey }

// VerificationKey returns the public key registered under kid.
func (s *Store) VerificationKey(kid string) (*rsa.PublicKey, bool) {
	if kid == "" || kid != s.pair.KeyID {
		return nil, false
	}
	return s.pair.PublicKey, true
}

// Ephemeral reports whether the pair was generated at startup. Tokens signed
// by an ephemeral key do not survive a restart.
func (s *Store) Ephemeral() bool { return s.ephemeral }

// Bits returns the modulus size of the active key.
func (s *Store) Bits() int { return s.pair.PublicKey.N.BitLen() }

// EncodePEM renders the pair as PEM. With legacy set the private key is
// written as PKCS#1 instead of PKCS#8.
func (s *Store) EncodePEM(legacy bool) (privatePEM, publicPEM []byte, err error) {
	var block *pem.Block
	if legacy {
		block = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(s.pair.PrivateKey)}
	} else {
		der, err := x509.MarshalPKCS8PrivateKey(s.pair.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("keystore: marshal private key: %w", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	}

	pubDER, err := x509.MarshalPKIXPublicKey(s.pair.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(block), pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), nil
}
