// Package rate provides the Redis-backed fixed-window limiter guarding the
// public credential endpoints.
//
// # Window semantics
//
// One Lua script per check: INCR, PEXPIRE on the first hit, PTTL for the
// remaining window. Keys are "<prefix><scope>:<identifier>", the identifier
// being "id:<email>" or "ip:<addr>" as chosen by [IdentifierFor].
//
// # Failure mode
//
// The limiter fails open. An unreachable Redis allows the request and
// reports the error so callers can count and log it; it never blocks logins.
//
// # What this package must NOT do
//
//   - Decide lockout or any per-account consequence.
//   - Be imported outside the authcore module.
package rate
