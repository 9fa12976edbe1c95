// Package refresh issues and rotates opaque refresh tokens.
//
// # Token format
//
// 256 random bits, base64url without padding. Stores retain only the hex
// SHA-256 of the token, so a leaked table cannot be replayed.
//
// # Rotation
//
// Redeem checks unknown, revoked and expired in that order. Rotate relies on
// the store's conditional revoke: of any number of concurrent rotations of
// one token exactly one wins, and every later presentation of that token
// reports [ErrRevoked].
//
// Store failures surface as [ErrUnavailable]; callers must fail closed.
package refresh
