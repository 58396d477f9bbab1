package keyserver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/interfaces"
)

const (
	// BundleFramingByte prefixes the serialized bundle in a session payload.
	// SessionKey.CreateRequestParams strips it before signing.
	BundleFramingByte = 0x00

	// KeyIDLength is the size of the bytes32 argument to seal_approve.
	KeyIDLength = 32

	// FullIDLength is the size of an identity-based key id: padded package id || key id.
	FullIDLength = interfaces.ProtocolIDLength + KeyIDLength
)

// SealApproveSelector is the 4-byte function selector of seal_approve(bytes32).
var SealApproveSelector = crypto.Keccak256([]byte("seal_approve(bytes32)"))[:4]

// Call is one transaction in a bundle.
type Call struct {
	To   interfaces.Address `json:"to"`
	Data hexutil.Bytes      `json:"data"`
}

// KeyID returns the seal_approve argument of the call.
func (c Call) KeyID() ([]byte, error) {
	if len(c.Data) < 4+KeyIDLength {
		return nil, fmt.Errorf("%w: call data too short (%d bytes)", ErrInvalidBundle, len(c.Data))
	}
	if !bytes.Equal(c.Data[:4], SealApproveSelector) {
		return nil, fmt.Errorf("%w: call is not seal_approve (selector %x)", ErrInvalidBundle, []byte(c.Data[:4]))
	}
	return bytes.Clone(c.Data[4 : 4+KeyIDLength]), nil
}

// Bundle is the parsed transaction bundle of a fetch-key request.
type Bundle struct {
	Calls []Call
}

// Package returns the package (contract) address the bundle is scoped to:
// the recipient of its first call.
func (b *Bundle) Package() interfaces.Address {
	return b.Calls[0].To
}

// SealApproveCall builds the calldata of seal_approve(keyID).
func SealApproveCall(pkg interfaces.Address, keyID [KeyIDLength]byte) Call {
	data := make([]byte, 0, 4+KeyIDLength)
	data = append(data, SealApproveSelector...)
	data = append(data, keyID[:]...)
	return Call{To: pkg, Data: data}
}

// BuildPayload serializes calls into a session payload: the framing byte
// followed by the JSON call list.
func BuildPayload(calls ...Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: empty bundle", ErrInvalidBundle)
	}
	encoded, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("could not encode bundle: %w", err)
	}
	return append([]byte{BundleFramingByte}, encoded...), nil
}

// ParseBundle parses the stripped bundle bytes carried in a request.
func ParseBundle(ptb []byte) (*Bundle, error) {
	var calls []Call
	if err := json.Unmarshal(ptb, &calls); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: empty bundle", ErrInvalidBundle)
	}
	return &Bundle{Calls: calls}, nil
}

// FullID binds a key id to its package: the package left-padded to 32 bytes
// followed by the key id. Keys are derived for the full id, so a key id
// approved for one package never yields another package's key.
func FullID(pkg interfaces.Address, keyID []byte) []byte {
	padded := pkg.ProtocolID()
	out := make([]byte, 0, FullIDLength)
	out = append(out, padded[:]...)
	return append(out, keyID...)
}
