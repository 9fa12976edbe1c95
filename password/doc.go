// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes imported from earlier deployments may be bcrypt ($2a$, $2b$, $2y$).
// They verify normally and [Hasher.NeedsUpgrade] reports true for them, so the
// caller re-hashes on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
