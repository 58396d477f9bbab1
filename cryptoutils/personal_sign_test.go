package cryptoutils

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalSignRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := interfaces.Address(crypto.PubkeyToAddress(key.PublicKey))

	message := []byte("Accessing keys of package 0x00 for 1 mins")
	sig, err := SignPersonalMessage(key, message)
	require.NoError(t, err)
	require.Len(t, sig, PersonalSignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[crypto.RecoveryIDOffset])

	recovered, err := RecoverPersonalSigner(message, sig)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
	require.NoError(t, VerifyPersonalSignature(address, message, sig))

	// Raw 0/1 recovery ids are accepted as well.
	raw := append([]byte(nil), sig...)
	raw[crypto.RecoveryIDOffset] -= 27
	require.NoError(t, VerifyPersonalSignature(address, message, raw))
}

func TestPersonalMessageHash_MatchesEIP191(t *testing.T) {
	message := []byte("hello")
	expected := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n5hello"))
	assert.Equal(t, expected, PersonalMessageHash(message))
	assert.Equal(t, accounts.TextHash(message), PersonalMessageHash(message))
}

func TestVerifyPersonalSignature_Failures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := interfaces.Address(crypto.PubkeyToAddress(key.PublicKey))

	message := []byte("message")
	sig, err := SignPersonalMessage(other, message)
	require.NoError(t, err)

	err = VerifyPersonalSignature(address, message, sig)
	assert.ErrorIs(t, err, ErrSignerMismatch)

	err = VerifyPersonalSignature(address, message, sig[:64])
	assert.ErrorIs(t, err, ErrMalformedSignature)

	bad := append([]byte(nil), sig...)
	bad[crypto.RecoveryIDOffset] = 5
	err = VerifyPersonalSignature(address, message, bad)
	assert.ErrorIs(t, err, ErrMalformedSignature)

	own, err := SignPersonalMessage(key, message)
	require.NoError(t, err)
	err = VerifyPersonalSignature(address, []byte("another message"), own)
	assert.ErrorIs(t, err, ErrSignerMismatch)
}
