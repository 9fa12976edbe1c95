// Package keystore loads, converts, or generates the RSA key pair used to sign
// access tokens.
//
// Key material comes from configuration as PEM or base64 DER. Legacy PKCS#1
// private keys are rewritten into PKCS#8 by [WrapPKCS1] before parsing, so
// only one private-key parser is ever used. When no key is configured a
// 2048-bit pair is generated and the store reports itself [Store.Ephemeral].
//
// Every store returned by [Load] has passed [SelfTest].
package keystore
