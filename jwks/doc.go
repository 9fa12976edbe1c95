// Package jwks publishes the service's RSA verification key as a JSON Web Key
// Set so resource servers can verify access tokens offline.
//
// The document shape is fixed: one entry per key with kty=RSA, use=sig,
// alg=RS256, the key id, and the modulus and exponent as unpadded base64url
// big-endian integers without leading zero octets.
package jwks
