// Package limiters holds the account lockout policy.
//
// [LockoutGuard] is a pure state machine over account.LockoutState: it
// decides whether a password check may run and what the state becomes after
// a failure or success. Persistence and serialization belong to the account
// store, which applies each transition under an exclusive row lock.
//
// # What this package must NOT do
//
//   - Perform I/O or hold per-account state.
//   - Import authcore or the store packages.
package limiters
