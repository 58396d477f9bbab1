package sessionkey

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

// RequestParams are the per-request outputs of CreateRequestParams.
//
// Ephemeral holds the secret that decrypts the key server's reply; it stays
// local and must be released after the round trip. RequestSignature and the
// public parts of Ephemeral are sent to the key server.
type RequestParams struct {
	// Ephemeral is the single-use keypair the key server encrypts its reply to.
	Ephemeral *cryptoutils.EphemeralKeypair

	// RequestSignature is the Ed25519 session signature over EncodedRequest.
	RequestSignature []byte

	// EncodedRequest is the canonical request that was signed.
	EncodedRequest []byte

	// PTB is the request payload with its framing byte stripped.
	PTB []byte
}

// DecryptionKey returns a copy of the ephemeral secret.
func (p *RequestParams) DecryptionKey() []byte {
	return p.Ephemeral.Secret()
}

// Release zeroes the ephemeral secret.
func (p *RequestParams) Release() {
	p.Ephemeral.Release()
}

// FetchKeyRequest assembles the key-server request body for cert.
func (p *RequestParams) FetchKeyRequest(cert *interfaces.Certificate) *interfaces.FetchKeyRequest {
	return &interfaces.FetchKeyRequest{
		PTB:                base64.StdEncoding.EncodeToString(p.PTB),
		EncKey:             p.Ephemeral.PublicKey,
		EncVerificationKey: p.Ephemeral.VerificationKey,
		RequestSignature:   p.RequestSignature,
		Certificate:        *cert,
	}
}

// CreateRequestParams signs one decryption request.
//
// payload is the caller's transaction bytes including a leading framing byte,
// which is stripped before encoding. Expiry is checked before anything else:
// an expired session returns ErrSessionExpired without generating keys. Each
// call draws its own ephemeral keypair, so calls may run concurrently.
func (k *SessionKey) CreateRequestParams(payload []byte) (*RequestParams, error) {
	if k.IsExpired() {
		return nil, fmt.Errorf("%w: expired at %s", ErrSessionExpired, k.ExpiresAt().UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	ephemeral, err := k.generateKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	ptb := payload[1:]
	encoded := cryptoutils.EncodeRequest(ptb, ephemeral.PublicKey, ephemeral.VerificationKey)
	signature := ed25519.Sign(k.signingKey, encoded)

	k.log.Debug("Signed decryption request",
		"packageID", k.scope.String(),
		"requestLen", len(encoded),
		"ephemeral", ephemeral)

	return &RequestParams{
		Ephemeral:        ephemeral,
		RequestSignature: signature,
		EncodedRequest:   encoded,
		PTB:              append([]byte(nil), ptb...),
	}, nil
}
