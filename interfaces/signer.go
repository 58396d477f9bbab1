package interfaces

import "context"

// Signer is an identity capable of producing EIP-191 personal-message signatures.
//
// Implementations may block in SignPersonalMessage while an external holder
// (a wallet, a hardware device) approves the request. Callers bound the wait
// through ctx; there is no implicit timeout.
type Signer interface {
	// Address returns the address the signer signs for.
	Address() Address

	// SignPersonalMessage signs message with the EIP-191 "personal_sign" prefix
	// and returns a 65-byte r||s||v signature with v in {27, 28}.
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}
