package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

// mnemonicInfo domain-separates the signing key derived from a mnemonic seed.
const mnemonicInfo = "seal-session/identity/v1"

// PrivateKeySigner signs with a secp256k1 key held in memory.
// Signatures are deterministic (RFC 6979), which makes it the signer of choice in tests.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address interfaces.Address
}

// NewPrivateKeySigner wraps an in-memory secp256k1 key.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: interfaces.Address(crypto.PubkeyToAddress(key.PublicKey)),
	}
}

// NewPrivateKeySignerFromHex parses a hex-encoded secp256k1 private key, with or without 0x.
func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

// NewMnemonicSigner derives a signing key from a BIP-39 mnemonic.
// The seed is expanded with HKDF-SHA256, so the same mnemonic and passphrase
// always yield the same address.
func NewMnemonicSigner(mnemonic, passphrase string) (*PrivateKeySigner, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("not a valid BIP-39 mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	var sk [32]byte
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(mnemonicInfo)), sk[:]); err != nil {
		return nil, fmt.Errorf("failed to expand mnemonic seed: %w", err)
	}

	key, err := crypto.ToECDSA(sk[:])
	if err != nil {
		return nil, fmt.Errorf("derived key is not a valid secp256k1 scalar: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

// NewKeystoreSigner decrypts a go-ethereum JSON keystore file.
func NewKeystoreSigner(keyJSON []byte, passphrase string) (*PrivateKeySigner, error) {
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt keystore: %w", err)
	}
	return NewPrivateKeySigner(key.PrivateKey), nil
}

// NewKeystoreSignerFromFile reads and decrypts a JSON keystore file.
func NewKeystoreSignerFromFile(path, passphrase string) (*PrivateKeySigner, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read keystore: %w", err)
	}
	return NewKeystoreSigner(keyJSON, passphrase)
}

// Address returns the address derived from the signing key.
func (s *PrivateKeySigner) Address() interfaces.Address {
	return s.address
}

// SignPersonalMessage signs message with the EIP-191 prefix. It does not block.
func (s *PrivateKeySigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := cryptoutils.SignPersonalMessage(s.key, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return sig, nil
}
