package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var selfTestPayload = []byte("authcore keystore self-test")

// SelfTest signs and verifies a fixed payload, then mints and parses a
// minimal RS256 token carrying the key id. A failure means the pair cannot
// be used and startup must abort.
func SelfTest(s *Store) error {
	if s == nil || s.pair.PrivateKey == nil || s.pair.PublicKey == nil {
		return fmt.Errorf("%w: no key pair", ErrSelfTestFailed)
	}

	digest := sha256.Sum256(selfTestPayload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.pair.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("%w: sign: %v", ErrSelfTestFailed, err)
	}
	if err := rsa.VerifyPKCS1v15(s.pair.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: verify: %v", ErrSelfTestFailed, err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "self-test",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	})
	token.Header["kid"] = s.pair.KeyID

	signed, err := token.SignedString(s.pair.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: mint token: %v", ErrSelfTestFailed, err)
	}

	parsed, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.VerificationKey(kid)
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: parse token: %v", ErrSelfTestFailed, err)
	}
	if sub, _ := parsed.Claims.GetSubject(); sub != "self-test" {
		return fmt.Errorf("%w: subject mismatch", ErrSelfTestFailed)
	}
	return nil
}
