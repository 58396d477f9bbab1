package sessionkey

import "errors"

var (
	// ErrInvalidConfiguration is returned when an address or scope is malformed,
	// the TTL is outside [MinTTLMinutes, MaxTTLMinutes], or exported data is inconsistent.
	ErrInvalidConfiguration = errors.New("invalid session key configuration")

	// ErrSignerIdentityMismatch is returned when the supplied signer signs for a
	// different address than the session identity.
	ErrSignerIdentityMismatch = errors.New("signer address does not match session key address")

	// ErrMissingAttestation is returned when a certificate is requested before any
	// attestation signature was set and no signer is available to obtain one.
	ErrMissingAttestation = errors.New("attestation signature is not set; sign the attestation message and retry")

	// ErrInvalidAttestation is returned when an attestation signature does not verify
	// against the session's attestation message and identity.
	ErrInvalidAttestation = errors.New("attestation signature verification failed; sign again")

	// ErrSessionExpired is returned when a request is signed after the session's TTL
	// lapsed. The session cannot recover; create a new one.
	ErrSessionExpired = errors.New("session key expired; create a new session")

	// ErrEmptyPayload is returned when a request payload lacks even its framing byte.
	ErrEmptyPayload = errors.New("request payload is empty")

	// ErrNotSerializable is returned by generic serialization of exported session keys.
	ErrNotSerializable = errors.New("exported session key is not serializable; use MarshalSensitive")
)
