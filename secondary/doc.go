// Package secondary manages single-use credentials outside the login path:
// password-reset tokens and email-verification codes.
//
// Secrets are stored as SHA-256 hashes. A consume is one store transaction
// that locks the credential, records the outcome (used, or one more failed
// attempt) and applies the dependent [Effect], such as activating the
// account or setting the new password hash. Failed attempts are committed
// so the attempt cap holds across requests.
//
// Issuing a credential supersedes the user's earlier unconsumed credential
// of the same kind.
package secondary
