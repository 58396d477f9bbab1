package cryptoutils

import (
	"crypto/x509"
	"encoding/base64"
	"testing"
	"time"

	"github.com/ruteri/seal-session/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttestationMessage(t *testing.T) {
	scope, err := interfaces.NewAddressFromHex("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	require.NoError(t, err)

	vk := make([]byte, 32)
	for i := range vk {
		vk[i] = byte(i)
	}

	created := time.Date(2025, 1, 2, 3, 4, 5, 999_000_000, time.UTC).UnixMilli()
	msg := AttestationMessage(scope, 15, created, vk)

	assert.Equal(t,
		"Accessing keys of package 0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb for 15 mins from 2025-01-02 03:04:05 UTC, session key "+
			base64.StdEncoding.EncodeToString(vk),
		string(msg))
}

func TestAttestationMessage_UTCRegardlessOfLocalZone(t *testing.T) {
	scope := interfaces.Address{0x01}
	loc := time.FixedZone("UTC+5", 5*60*60)
	created := time.Date(2025, 6, 1, 23, 30, 0, 0, loc).UnixMilli()

	msg := string(AttestationMessage(scope, 1, created, []byte{0x00}))
	assert.Contains(t, msg, "from 2025-06-01 18:30:00 UTC")
}

func TestCertificateMessage_MatchesAttestation(t *testing.T) {
	scope := interfaces.Address{0xbb}
	vk := []byte("0123456789abcdef0123456789abcdef")
	created := int64(1_700_000_000_456)

	cert := &interfaces.Certificate{
		SessionVK:    base64.StdEncoding.EncodeToString(vk),
		CreationTime: created,
		TTLMin:       30,
	}
	assert.Equal(t, AttestationMessage(scope, 30, created, vk), CertificateMessage(cert, scope))
}

func TestSelfSignedCertificate(t *testing.T) {
	cert, err := SelfSignedCertificate([]string{"localhost", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, parsed.DNSNames)
	require.Len(t, parsed.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", parsed.IPAddresses[0].String())
	assert.True(t, parsed.NotAfter.After(time.Now()))
}
