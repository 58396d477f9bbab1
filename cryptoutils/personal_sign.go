package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/interfaces"
)

// PersonalSignatureLength is the size of an r||s||v secp256k1 signature.
const PersonalSignatureLength = crypto.SignatureLength

var (
	// ErrMalformedSignature is returned when a signature cannot be parsed or recovered.
	ErrMalformedSignature = errors.New("malformed personal message signature")

	// ErrSignerMismatch is returned when a signature recovers to an unexpected address.
	ErrSignerMismatch = errors.New("signature was not produced by the expected address")
)

// PersonalMessageHash returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalMessageHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// SignPersonalMessage produces an EIP-191 signature in wallet convention (v in {27, 28}).
func SignPersonalMessage(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(PersonalMessageHash(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverPersonalSigner returns the address that produced sig over message.
// Both wallet-style (27/28) and raw (0/1) recovery ids are accepted.
func RecoverPersonalSigner(message, sig []byte) (interfaces.Address, error) {
	if len(sig) != PersonalSignatureLength {
		return interfaces.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, PersonalSignatureLength, len(sig))
	}

	normalized := make([]byte, PersonalSignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return interfaces.Address{}, fmt.Errorf("%w: invalid recovery id %d", ErrMalformedSignature, sig[crypto.RecoveryIDOffset])
	}

	pubkey, err := crypto.SigToPub(PersonalMessageHash(message), normalized)
	if err != nil {
		return interfaces.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return interfaces.Address(crypto.PubkeyToAddress(*pubkey)), nil
}

// VerifyPersonalSignature checks that sig over message recovers to expected.
func VerifyPersonalSignature(expected interfaces.Address, message, sig []byte) error {
	recovered, err := RecoverPersonalSigner(message, sig)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("%w: expected %s, recovered %s", ErrSignerMismatch, expected, recovered)
	}
	return nil
}
