// Package interfaces defines the shared types and contracts of the session
// authorization system, separating definitions from implementations.
//
// # Identity Types
//
// Address is a 20-byte identity or package address rendered as 0x-prefixed
// lower-case hex. ProtocolID is the 32-byte left-padded form key servers use
// for package identifiers.
//
// # Signer Interface
//
// Signer is an external identity able to produce EIP-191 personal_sign
// signatures. Implementations live in the signer package: local keys,
// mnemonics, keystore files and JSON-RPC wallets.
//
// # Wire Types
//
// Certificate, FetchKeyRequest and FetchKeyResponse are the JSON bodies
// exchanged with key servers. Byte fields travel as base64 except the
// certificate signature, which is 0x-prefixed hex.
//
// # Storage Interfaces
//
// StorageBackend persists sealed session exports under a SessionID across
// file, S3 and Vault backends. StorageBackendLocation parses the URI that
// selects a backend.
package interfaces
