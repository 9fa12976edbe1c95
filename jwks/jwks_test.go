package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

type staticSource struct {
	kid string
	pub *rsa.PublicKey
}

func (s staticSource) KeyID() string             { return s.kid }
func (s staticSource) PublicKey() *rsa.PublicKey { return s.pub }

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestPublishRoundTripsModulusAndExponent(t *testing.T) {
	key := newKey(t)
	p := NewPublisher(staticSource{kid: "k1", pub: &key.PublicKey})

	doc := p.Publish()
	if len(doc.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(doc.Keys))
	}
	k := doc.Keys[0]
	if k.Kty != "RSA" || k.Use != "sig" || k.Alg != "RS256" || k.Kid != "k1" {
		t.Fatalf("unexpected key metadata: %+v", k)
	}

	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		t.Fatalf("decode n: %v", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		t.Fatalf("decode e: %v", err)
	}
	if new(big.Int).SetBytes(n).Cmp(key.N) != 0 {
		t.Fatal("modulus does not round-trip")
	}
	if int(new(big.Int).SetBytes(e).Int64()) != key.E {
		t.Fatal("exponent does not round-trip")
	}
	if k.E != "AQAB" {
		t.Fatalf("expected AQAB exponent, got %q", k.E)
	}
	if n[0] == 0 {
		t.Fatal("modulus carries a leading zero octet")
	}
}

func TestEncodeUintStripsLeadingZeros(t *testing.T) {
	got := EncodeUint([]byte{0x00, 0x00, 0x01, 0x02})
	if want := base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x02}); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := EncodeUint([]byte{0x00}); got != "AA" {
		t.Fatalf("zero must encode as a single octet, got %q", got)
	}
}

func TestDocumentJSONShape(t *testing.T) {
	key := newKey(t)
	raw, err := NewPublisher(staticSource{kid: "k1", pub: &key.PublicKey}).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var generic map[string][]map[string]string
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry := generic["keys"][0]
	for _, field := range []string{"kty", "use", "alg", "kid", "n", "e"} {
		if entry[field] == "" {
			t.Fatalf("missing %s in %s", field, raw)
		}
	}
}

func TestDocumentParsesWithThirdPartyJWK(t *testing.T) {
	key := newKey(t)
	raw, err := NewPublisher(staticSource{kid: "k1", pub: &key.PublicKey}).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	set, err := jwk.Parse(raw)
	if err != nil {
		t.Fatalf("jwk.Parse: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected one key, got %d", set.Len())
	}
	parsed, ok := set.Key(0)
	if !ok {
		t.Fatal("key 0 missing")
	}

	var exported any
	if err := jwk.Export(parsed, &exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	var pub *rsa.PublicKey
	switch v := exported.(type) {
	case *rsa.PublicKey:
		pub = v
	case rsa.PublicKey:
		pub = &v
	default:
		t.Fatalf("unexpected exported type %T", exported)
	}
	if !pub.Equal(&key.PublicKey) {
		t.Fatal("parsed key differs from published key")
	}
}

func TestPublishEmptyWithoutKey(t *testing.T) {
	doc := NewPublisher(staticSource{}).Publish()
	if doc.Keys == nil || len(doc.Keys) != 0 {
		t.Fatalf("expected empty non-nil key list, got %+v", doc.Keys)
	}
}

func TestThumbprintStable(t *testing.T) {
	key := newKey(t)
	a := Thumbprint(&key.PublicKey)
	b := Thumbprint(&key.PublicKey)
	if a == "" || a != b {
		t.Fatalf("thumbprint not stable: %q vs %q", a, b)
	}
	other := newKey(t)
	if Thumbprint(&other.PublicKey) == a {
		t.Fatal("distinct keys share a thumbprint")
	}
}
