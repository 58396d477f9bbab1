package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealWithPassphrase(t *testing.T) {
	passphrase := []byte("correct horse battery staple")
	ad := []byte("session-id")

	testCases := []struct {
		name string
		data []byte
	}{
		{"json", []byte(`{"address":"0x00"}`)},
		{"binary", []byte{0x00, 0x01, 0xfe, 0xff}},
		{"empty", []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := SealWithPassphrase(passphrase, tc.data, ad)
			require.NoError(t, err)
			assert.Equal(t, byte(sealVersion), sealed[0])

			opened, err := OpenWithPassphrase(passphrase, sealed, ad)
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), len(opened))
			if len(tc.data) > 0 {
				assert.Equal(t, tc.data, opened)
			}
		})
	}
}

func TestSealWithPassphrase_FreshSalt(t *testing.T) {
	passphrase := []byte("pass")
	a, err := SealWithPassphrase(passphrase, []byte("data"), nil)
	require.NoError(t, err)
	b, err := SealWithPassphrase(passphrase, []byte("data"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWithPassphrase_Failures(t *testing.T) {
	passphrase := []byte("pass")
	sealed, err := SealWithPassphrase(passphrase, []byte("secret"), []byte("ad"))
	require.NoError(t, err)

	_, err = OpenWithPassphrase([]byte("wrong"), sealed, []byte("ad"))
	assert.ErrorIs(t, err, ErrSealedDataCorrupt)

	_, err = OpenWithPassphrase(passphrase, sealed, []byte("other ad"))
	assert.ErrorIs(t, err, ErrSealedDataCorrupt)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = OpenWithPassphrase(passphrase, tampered, []byte("ad"))
	assert.ErrorIs(t, err, ErrSealedDataCorrupt)

	versioned := append([]byte(nil), sealed...)
	versioned[0] = 9
	_, err = OpenWithPassphrase(passphrase, versioned, []byte("ad"))
	assert.ErrorIs(t, err, ErrSealedDataCorrupt)

	_, err = OpenWithPassphrase(passphrase, sealed[:10], []byte("ad"))
	assert.ErrorIs(t, err, ErrSealedDataCorrupt)

	_, err = SealWithPassphrase(nil, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
	_, err = OpenWithPassphrase(nil, sealed, nil)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}
