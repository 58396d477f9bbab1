// Package cryptoutils provides the cryptographic primitives behind session-scoped
// decryption authorization.
//
// The package is deliberately free of session state. Everything here is a pure
// function of its inputs (apart from randomness), so the issuing side and the
// key-server side derive byte-identical messages and encodings.
//
// # Attestation Message
//
// AttestationMessage renders the human-readable text an identity signs with its
// wallet to authorize a session key:
//
//	Accessing keys of package 0x<40 hex> for <ttl> mins from 2024-03-09 07:05:04 UTC, session key <base64 vk>
//
// The creation time is truncated to whole seconds and always rendered in UTC.
//
// # Personal Signatures
//
// SignPersonalMessage, RecoverPersonalSigner and VerifyPersonalSignature
// implement EIP-191 personal_sign over secp256k1 using go-ethereum. Signatures
// are 65 bytes r||s||v; both v in {27, 28} and {0, 1} are accepted on recovery.
//
// # Canonical Request
//
// EncodeRequest produces the bytes a session key signs for one decryption
// request:
//
//	uleb128(len(ptb)) || ptb || uleb128(len(enc_key)) || enc_key || uleb128(len(enc_vk)) || enc_vk
//
// Key servers rebuild the same bytes with RequestFormat.Encode before checking
// the request signature.
//
// # Ephemeral ElGamal Keys
//
// Each request carries a fresh BLS12-381 keypair:
//
//   - secret: 32-byte big-endian scalar, never serialized or logged
//   - public key: secret·g1, 48-byte compressed G1 point
//   - verification key: secret·g2, 96-byte compressed G2 point
//
// Key servers encrypt derived keys to the public key (EncryptElGamal) and check
// the pair with VerifyEphemeralKeys. The requester decrypts with
// EphemeralKeypair.Decrypt and then calls Release.
//
// # Passphrase Sealing
//
// SealWithPassphrase protects exported session state at rest:
//
//	[version (1 byte)][salt (16 bytes)][nonce (12 bytes)][AES-256-GCM ciphertext]
//
// The key is derived from the passphrase with Argon2id.
package cryptoutils
