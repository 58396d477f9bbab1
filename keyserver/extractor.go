package keyserver

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// MasterPublicKeyLength is the size of a compressed G2 master public key.
const MasterPublicKeyLength = bls12381.SizeOfG2AffineCompressed

// identityDST domain-separates hashing of full ids onto G1.
var identityDST = []byte("SEAL-SESSION-V1-BLS12381G1_XMD:SHA-256_SSWU_RO_")

// KeyExtractor derives the identity-based key for a full id.
type KeyExtractor interface {
	// Extract returns the compressed G1 key for fullID.
	Extract(fullID []byte) ([]byte, error)

	// PublicKey returns the compressed G2 master public key.
	PublicKey() []byte
}

// MasterKeyExtractor derives keys as master·H(fullID) on BLS12-381.
type MasterKeyExtractor struct {
	master    fr.Element
	publicKey []byte
}

// NewMasterKeyExtractor creates an extractor from a 32-byte big-endian master scalar.
func NewMasterKeyExtractor(masterKey []byte) (*MasterKeyExtractor, error) {
	if len(masterKey) != fr.Bytes {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", fr.Bytes, len(masterKey))
	}
	if new(big.Int).SetBytes(masterKey).Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("master key is not a canonical scalar")
	}

	e := &MasterKeyExtractor{}
	e.master.SetBytes(masterKey)
	if e.master.IsZero() {
		return nil, fmt.Errorf("master key must not be zero")
	}

	_, _, _, g2 := bls12381.Generators()
	var mpk bls12381.G2Affine
	mpk.ScalarMultiplication(&g2, e.master.BigInt(new(big.Int)))
	b := mpk.Bytes()
	e.publicKey = b[:]
	return e, nil
}

// GenerateMasterKey draws a random master scalar.
func GenerateMasterKey() ([]byte, error) {
	var sk fr.Element
	for sk.IsZero() {
		if _, err := sk.SetRandom(); err != nil {
			return nil, err
		}
	}
	b := sk.Bytes()
	return b[:], nil
}

// Extract implements KeyExtractor.
func (e *MasterKeyExtractor) Extract(fullID []byte) ([]byte, error) {
	h, err := bls12381.HashToG1(fullID, identityDST)
	if err != nil {
		return nil, fmt.Errorf("could not hash id to curve: %w", err)
	}
	var key bls12381.G1Affine
	key.ScalarMultiplication(&h, e.master.BigInt(new(big.Int)))
	b := key.Bytes()
	return b[:], nil
}

// PublicKey implements KeyExtractor.
func (e *MasterKeyExtractor) PublicKey() []byte {
	return append([]byte(nil), e.publicKey...)
}

// VerifyDerivedKey checks e(key, g2) == e(H(fullID), masterPublicKey), i.e.
// that key was extracted for fullID by the holder of masterPublicKey.
func VerifyDerivedKey(masterPublicKey, fullID, key []byte) error {
	var mpk bls12381.G2Affine
	if _, err := mpk.SetBytes(masterPublicKey); err != nil {
		return fmt.Errorf("invalid master public key: %w", err)
	}
	var k bls12381.G1Affine
	if _, err := k.SetBytes(key); err != nil {
		return fmt.Errorf("invalid derived key: %w", err)
	}
	h, err := bls12381.HashToG1(fullID, identityDST)
	if err != nil {
		return fmt.Errorf("could not hash id to curve: %w", err)
	}

	_, _, _, g2 := bls12381.Generators()
	var negK bls12381.G1Affine
	negK.Neg(&k)
	ok, err := bls12381.PairingCheck([]bls12381.G1Affine{negK, h}, []bls12381.G2Affine{g2, mpk})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("derived key does not match id %x", fullID)
	}
	return nil
}

// ParseMasterPublicKey decodes a hex master public key, with or without a 0x
// prefix, and checks that it is a point in G2.
func ParseMasterPublicKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid master public key: %w", err)
	}
	if len(b) != MasterPublicKeyLength {
		return nil, fmt.Errorf("invalid master public key: expected %d bytes, got %d", MasterPublicKeyLength, len(b))
	}
	var mpk bls12381.G2Affine
	if _, err := mpk.SetBytes(b); err != nil {
		return nil, fmt.Errorf("invalid master public key: %w", err)
	}
	return b, nil
}
