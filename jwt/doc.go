// Package jwt mints and verifies RS256 bearer tokens.
//
// Every token carries a kid header selecting the verification key, and the
// claims sub, iat, exp, user_id, role and type. Verification pins the
// algorithm to RS256 inside the key function, so tokens declaring "none" or
// an HMAC algorithm never reach signature checking with a usable key.
// Failures are reported as one of [ErrMalformed], [ErrSignatureInvalid],
// [ErrExpired], [ErrUnsupported] or [ErrClaimsInvalid].
package jwt
