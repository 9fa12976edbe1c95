// Package middleware provides HTTP guards built on access-token validation.
//
// [Guard] reads the Authorization header, validates the bearer token through
// a [Validator] and stores the resulting [authcore.AuthResult] in the request
// context. [RequireRole] narrows a guarded route to one role.
//
// The package makes no decision beyond pass or reject; token parsing and
// signature checks stay in the engine.
package middleware
