package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// AddressLength is the width of a native account-style chain address.
	AddressLength = 20

	// ProtocolIDLength is the identifier width the key-server wire format expects.
	ProtocolIDLength = 32
)

// Address represents an Ethereum account or contract address.
type Address [AddressLength]byte

// NewAddressFromBytes creates an address from its raw 20-byte form.
func NewAddressFromBytes(addr []byte) (Address, error) {
	if len(addr) != AddressLength {
		return Address{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res Address
	copy(res[:], addr)
	return res, nil
}

// NewAddressFromHex parses a 40-character hex address, with or without the 0x prefix.
// Checksum casing is accepted but not enforced.
func NewAddressFromHex(addr string) (Address, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(clean) != 2*AddressLength {
		return Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewAddressFromBytes(addrBytes)
}

// String returns the 0x-prefixed lower-case hex form of the address.
// This is the form embedded in attestation messages.
func (addr Address) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr Address) Bytes() []byte {
	return addr[:]
}

// IsZero reports whether the address is all zero bytes.
func (addr Address) IsZero() bool {
	return addr == Address{}
}

// ProtocolID returns the address left-padded to the 32-byte protocol width.
func (addr Address) ProtocolID() ProtocolID {
	id, _ := ToProtocolID(addr[:])
	return id
}

// MarshalText implements encoding.TextMarshaler.
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (addr *Address) UnmarshalText(text []byte) error {
	parsed, err := NewAddressFromHex(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}

// ProtocolID is the fixed-width identifier used on the key-server wire format.
type ProtocolID [ProtocolIDLength]byte

// ToProtocolID left-pads a native identifier with zero bytes to 32 bytes.
// Inputs wider than 32 bytes are rejected.
func ToProtocolID(native []byte) (ProtocolID, error) {
	if len(native) > ProtocolIDLength {
		return ProtocolID{}, fmt.Errorf("identifier of %d bytes exceeds the %d-byte protocol width", len(native), ProtocolIDLength)
	}

	var id ProtocolID
	copy(id[ProtocolIDLength-len(native):], native)
	return id, nil
}

// String returns the 0x-prefixed hex form of the identifier.
func (id ProtocolID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte identifier.
func (id ProtocolID) Bytes() []byte {
	return id[:]
}
