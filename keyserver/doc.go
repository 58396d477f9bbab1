// Package keyserver implements the server side of session-scoped decryption
// authorization, plus a client for it.
//
// A fetch-key request carries a transaction bundle, an ephemeral ElGamal
// public key pair, an Ed25519 request signature and the session certificate.
// The Service checks them in this order:
//
//  1. the bundle parses and names a package (the first call's recipient)
//  2. the ephemeral public key and verification key match
//  3. the request signature verifies under the certified session key
//  4. the certificate is unexpired and its attestation recovers to its user
//  5. the user is within its rate limit
//  6. the Policy approves at least one seal_approve call
//
// Each approved key id is bound to its package (FullID), derived with the
// KeyExtractor and returned ElGamal-encrypted to the ephemeral public key.
//
// # HTTP API
//
//	POST /v1/fetch_key   interfaces.FetchKeyRequest -> interfaces.FetchKeyResponse
//	GET  /v1/public_key  master public key
//
// Errors map to 400 (malformed), 401 (signature or certificate), 403 (expired
// or denied) and 429 (rate limited). Every reply echoes X-Request-Id.
package keyserver
