package jwks

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
)

// Key is one RSA public key in JWK form.
type Key struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Document is the JWKS body served at the well-known endpoint.
type Document struct {
	Keys []Key `json:"keys"`
}

// KeySource exposes the verification material of the active signing key.
type KeySource interface {
	KeyID() string
	PublicKey() *rsa.PublicKey
}

// Publisher renders the active public key as a JWKS document.
type Publisher struct {
	source KeySource
}

// NewPublisher returns a Publisher reading from source on every call, so a
// key change in the source is reflected without rebuilding the publisher.
func NewPublisher(source KeySource) *Publisher {
	return &Publisher{source: source}
}

// Publish returns the current key set. It performs no I/O.
func (p *Publisher) Publish() Document {
	if p == nil || p.source == nil || p.source.PublicKey() == nil {
		return Document{Keys: []Key{}}
	}
	return Document{Keys: []Key{FromPublicKey(p.source.KeyID(), p.source.PublicKey())}}
}

// JSON returns the encoded key set.
func (p *Publisher) JSON() ([]byte, error) {
	return json.Marshal(p.Publish())
}

// FromPublicKey builds the JWK for an RS256 verification key.
func FromPublicKey(kid string, pub *rsa.PublicKey) Key {
	return Key{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   EncodeUint(pub.N.Bytes()),
		E:   EncodeUint(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// EncodeUint encodes a big-endian unsigned integer as unpadded base64url,
// dropping leading zero octets first.
func EncodeUint(b []byte) string {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return base64.RawURLEncoding.EncodeToString(b[i:])
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of pub.
func Thumbprint(pub *rsa.PublicKey) string {
	k := FromPublicKey("", pub)
	// Member order is fixed lexicographically by RFC 7638.
	canonical := `{"e":"` + k.E + `","kty":"RSA","n":"` + k.N + `"}`
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
