// Package httpapi exposes an [authcore.Engine] over JSON HTTP endpoints on a
// chi router.
//
// Credential failures on /login collapse to one 401 body. A locked account
// answers 423. /forgot-password and /resend-verification answer 200 whether
// or not the email is registered. Rate-limited requests get 429 with a
// Retry-After header.
package httpapi
