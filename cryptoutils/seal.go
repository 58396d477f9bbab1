package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	sealVersion   = 1
	sealSaltSize  = 16
	sealNonceSize = 12 // 12 bytes is standard for GCM

	// Argon2id parameters: time=1, memory=64MiB, threads=4, keyLen=32
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

var (
	// ErrSealedDataCorrupt is returned when sealed data is truncated, has an unknown
	// version, or fails authentication (which includes a wrong passphrase).
	ErrSealedDataCorrupt = errors.New("sealed data is corrupt or the passphrase is wrong")

	// ErrEmptyPassphrase is returned when sealing is attempted without a passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
)

// SealWithPassphrase encrypts data with AES-256-GCM under a key derived from
// passphrase with Argon2id. A fresh salt and nonce are drawn for every call.
// The optional associatedData is authenticated but not encrypted.
//
// Format: [version (1 byte)][salt (16 bytes)][nonce (12 bytes)][ciphertext]
func SealWithPassphrase(passphrase, data, associatedData []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	header := make([]byte, 1+sealSaltSize+sealNonceSize)
	header[0] = sealVersion
	if _, err := io.ReadFull(rand.Reader, header[1:]); err != nil {
		return nil, fmt.Errorf("failed to generate salt and nonce: %w", err)
	}
	salt := header[1 : 1+sealSaltSize]
	nonce := header[1+sealSaltSize:]

	aead, err := passphraseAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	return aead.Seal(header, nonce, data, associatedData), nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase, sealed, associatedData []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if len(sealed) < 1+sealSaltSize+sealNonceSize {
		return nil, fmt.Errorf("%w: too short", ErrSealedDataCorrupt)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrSealedDataCorrupt, sealed[0])
	}

	salt := sealed[1 : 1+sealSaltSize]
	nonce := sealed[1+sealSaltSize : 1+sealSaltSize+sealNonceSize]
	ciphertext := sealed[1+sealSaltSize+sealNonceSize:]

	aead, err := passphraseAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrSealedDataCorrupt
	}
	return plaintext, nil
}

func passphraseAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
