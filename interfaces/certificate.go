package interfaces

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Certificate proves that a session verification key was authorized by User
// for a TTL window starting at CreationTime. It carries no secret material.
type Certificate struct {
	// User is the address that signed the attestation message.
	User Address `json:"user"`

	// SessionVK is the base64-encoded Ed25519 session verification key.
	SessionVK string `json:"session_vk"`

	// CreationTime is the session creation time in milliseconds since epoch.
	CreationTime int64 `json:"creation_time"`

	// TTLMin is the session lifetime in minutes.
	TTLMin uint16 `json:"ttl_min"`

	// Signature is the 65-byte EIP-191 signature over the attestation message.
	Signature hexutil.Bytes `json:"signature"`
}

// ElGamalCiphertext is an ElGamal encryption of a G1 point on BLS12-381,
// both components in compressed form.
type ElGamalCiphertext struct {
	C1 []byte `json:"c1"`
	C2 []byte `json:"c2"`
}

// FetchKeyRequest is the body a key server receives for one decryption request.
// Byte fields are base64 encoded on the wire.
type FetchKeyRequest struct {
	// PTB is the base64-encoded transaction bundle, framing byte stripped.
	PTB string `json:"ptb"`

	// EncKey is the compressed G1 ephemeral public key.
	EncKey []byte `json:"enc_key"`

	// EncVerificationKey is the compressed G2 ephemeral verification key.
	EncVerificationKey []byte `json:"enc_verification_key"`

	// RequestSignature is the Ed25519 session signature over the canonical request.
	RequestSignature []byte `json:"request_signature"`

	Certificate Certificate `json:"certificate"`
}

// DecryptionKey is one key-server reply entry, encrypted to the requester's ephemeral key.
type DecryptionKey struct {
	ID           []byte            `json:"id"`
	EncryptedKey ElGamalCiphertext `json:"encrypted_key"`
}

// FetchKeyResponse is the key-server reply to a FetchKeyRequest.
type FetchKeyResponse struct {
	DecryptionKeys []DecryptionKey `json:"decryption_keys"`
}
