package keystore

import "fmt"

// rsaAlgorithmIdentifier is the DER AlgorithmIdentifier for rsaEncryption
// (OID 1.2.840.113549.1.1.1) with NULL parameters.
var rsaAlgorithmIdentifier = []byte{
	0x30, 0x0d,
	0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01,
	0x05, 0x00,
}

var pkcs8Version = []byte{0x02, 0x01, 0x00}

// WrapPKCS1 converts a DER PKCS#1 RSAPrivateKey into a DER PKCS#8
// PrivateKeyInfo by prefixing the fixed version and algorithm header and
// carrying the original key bytes as the privateKey octet string.
// The input is not parsed beyond its outer tag.
func WrapPKCS1(der []byte) ([]byte, error) {
	if len(der) < 2 || der[0] != 0x30 {
		return nil, fmt.Errorf("%w: not a DER sequence", ErrInvalidPrivateKey)
	}

	octet := make([]byte, 0, len(der)+5)
	octet = append(octet, 0x04)
	octet = append(octet, derLength(len(der))...)
	octet = append(octet, der...)

	bodyLen := len(pkcs8Version) + len(rsaAlgorithmIdentifier) + len(octet)
	out := make([]byte, 0, bodyLen+5)
	out = append(out, 0x30)
	out = append(out, derLength(bodyLen)...)
	out = append(out, pkcs8Version...)
	out = append(out, rsaAlgorithmIdentifier...)
	out = append(out, octet...)
	return out, nil
}

// derLength encodes n in DER definite form: short form below 128, long form
// with the minimal number of length octets otherwise.
func derLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var octets []byte
	for v := n; v > 0; v >>= 8 {
		octets = append([]byte{byte(v)}, octets...)
	}
	return append([]byte{0x80 | byte(len(octets))}, octets...)
}
