// Package sessionkey issues session-scoped authorization for key-server decryption requests.
//
// A wallet identity signs one attestation message to authorize a short-lived
// Ed25519 session key for a package (scope). The session key then signs each
// decryption request itself, so the wallet is not prompted again until the
// session expires.
//
// # Lifecycle
//
//	sk, err := sessionkey.New(identity, packageID, 15, sessionkey.WithSigner(wallet))
//	cert, err := sk.GetCertificate(ctx)          // prompts the wallet once
//	params, err := sk.CreateRequestParams(txBytes) // no prompt, fresh ephemeral key
//	defer params.Release()
//	body := params.FetchKeyRequest(cert)          // send to key servers
//
// A session is unsigned until SetAttestationSignature or GetCertificate stores
// a signature that verifies against the attestation message:
//
//	Accessing keys of package <0x package> for <ttl> mins from <YYYY-MM-DD HH:MM:SS UTC>, session key <base64 vk>
//
// # Expiry
//
// A session expires ClockSkewAllowance before createdAt + ttl. Expiry is
// computed on every CreateRequestParams call; there are no timers, and an
// expired session cannot be revived.
//
// # Errors
//
// Every failure maps to a distinct sentinel so callers can tell "sign again"
// (ErrMissingAttestation, ErrInvalidAttestation) from "start over"
// (ErrSessionExpired) from "fix the input" (ErrInvalidConfiguration,
// ErrSignerIdentityMismatch). Signer errors are returned unchanged.
//
// # Export
//
// Export returns the session state including its signing secret. The export
// refuses JSON, text and log serialization; MarshalSensitive is the one
// explicit encoding path, and callers that persist it own its protection.
package sessionkey
