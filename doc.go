// Package authcore is a credential-issuance engine: it checks passwords,
// mints RS256 access tokens, rotates opaque refresh tokens and defends login
// against brute force with per-account lockout and Redis-backed rate limits.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config] and
// value types such as [TokenPair] and [SecurityReport]. The building blocks
// live in their own packages: keystore, jwks, jwt, refresh, secondary and
// password are usable on their own; lockout, rate limiting, audit dispatch
// and metric storage live under internal/.
//
// Persistence is a [Store]. store/memory serves tests and single-process
// use; store/postgres is the production implementation.
//
// # Verification by other services
//
// Access tokens carry the signing key id in their header. Services that only
// need to check tokens fetch [Engine.KeySetJSON] once and verify locally;
// they never call back into the engine.
//
// # Failure posture
//
// Storage failures on guarded paths fail closed with [ErrStoreUnavailable].
// The rate limiter is the one exception: when Redis is unreachable requests
// are allowed and the event is counted under MetricRateLimitFailOpen.
package authcore
