package keyserver

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMasterPublicKey(t *testing.T) {
	masterKey, err := GenerateMasterKey()
	require.NoError(t, err)
	extractor, err := NewMasterKeyExtractor(masterKey)
	require.NoError(t, err)

	encoded := hex.EncodeToString(extractor.PublicKey())
	for _, raw := range []string{encoded, "0x" + encoded} {
		mpk, err := ParseMasterPublicKey(raw)
		require.NoError(t, err)
		assert.Equal(t, extractor.PublicKey(), mpk)
	}

	for name, raw := range map[string]string{
		"not hex":      "zz",
		"short":        encoded[:64],
		"not a point":  strings.Repeat("00", MasterPublicKeyLength),
		"empty string": "",
	} {
		_, err := ParseMasterPublicKey(raw)
		assert.Error(t, err, name)
	}
}
