package keyserver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/sessionkey"
	"github.com/ruteri/seal-session/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCertifiedSession(t *testing.T, pkg interfaces.Address, ttl int) (*sessionkey.SessionKey, *interfaces.Certificate) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.NewPrivateKeySigner(key)

	sk, err := sessionkey.New(s.Address().String(), pkg.String(), ttl, sessionkey.WithSigner(s))
	require.NoError(t, err)
	cert, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)
	return sk, cert
}

func TestCheckCertificate(t *testing.T) {
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 15)
	now := sk.CreatedAt().Add(time.Minute)

	require.NoError(t, CheckCertificate(cert, pkg, now))

	// Exactly at the deadline is still valid; one millisecond later is not.
	deadline := sk.CreatedAt().Add(15 * time.Minute)
	require.NoError(t, CheckCertificate(cert, pkg, deadline))
	err := CheckCertificate(cert, pkg, deadline.Add(time.Millisecond))
	assert.ErrorIs(t, err, ErrCertificateExpired)

	// Bound to the package it was issued for.
	err = CheckCertificate(cert, interfaces.Address{0xcc}, now)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestCheckCertificate_FutureCreationTime(t *testing.T) {
	pkg := interfaces.Address{0xbb}
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.NewPrivateKeySigner(key)

	now := time.Now()
	issue := func(at time.Time) *interfaces.Certificate {
		sk, err := sessionkey.New(s.Address().String(), pkg.String(), 30,
			sessionkey.WithSigner(s), sessionkey.WithClock(func() time.Time { return at }))
		require.NoError(t, err)
		cert, err := sk.GetCertificate(context.Background())
		require.NoError(t, err)
		return cert
	}

	// Correctly signed, but issued with a clock a year ahead.
	future := issue(now.AddDate(1, 0, 0))
	err = CheckCertificate(future, pkg, now)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
	err = CheckCertificate(future, pkg, now.AddDate(0, 6, 0))
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	// Small drift between issuer and server clocks is tolerated.
	drifted := issue(now.Add(5 * time.Second))
	assert.NoError(t, CheckCertificate(drifted, pkg, now))

	skewed := issue(now.Add(MaxCreationTimeSkew + time.Second))
	assert.ErrorIs(t, CheckCertificate(skewed, pkg, now), ErrInvalidCertificate)
}

func TestCheckCertificate_Tampered(t *testing.T) {
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 10)
	now := sk.CreatedAt()

	testCases := []struct {
		name   string
		mutate func(c *interfaces.Certificate)
	}{
		{"longer ttl", func(c *interfaces.Certificate) { c.TTLMin = 20 }},
		{"ttl above max", func(c *interfaces.Certificate) { c.TTLMin = 31 }},
		{"zero ttl", func(c *interfaces.Certificate) { c.TTLMin = 0 }},
		{"earlier creation", func(c *interfaces.Certificate) { c.CreationTime -= 60_000 }},
		{"future creation", func(c *interfaces.Certificate) { c.CreationTime += (365 * 24 * time.Hour).Milliseconds() }},
		{"other user", func(c *interfaces.Certificate) { c.User = interfaces.Address{0x01} }},
		{"other session key", func(c *interfaces.Certificate) {
			pub, _, _ := ed25519.GenerateKey(nil)
			c.SessionVK = base64.StdEncoding.EncodeToString(pub)
		}},
		{"bad session key", func(c *interfaces.Certificate) { c.SessionVK = "not base64!" }},
		{"short signature", func(c *interfaces.Certificate) { c.Signature = c.Signature[:10] }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tampered := *cert
			tampered.Signature = append([]byte(nil), cert.Signature...)
			tc.mutate(&tampered)
			err := CheckCertificate(&tampered, pkg, now)
			assert.ErrorIs(t, err, ErrInvalidCertificate)
		})
	}
}

func TestVerifyRequestSignature(t *testing.T) {
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 10)

	var keyID [KeyIDLength]byte
	payload, err := BuildPayload(SealApproveCall(pkg, keyID))
	require.NoError(t, err)

	params, err := sk.CreateRequestParams(payload)
	require.NoError(t, err)
	req := params.FetchKeyRequest(cert)

	require.NoError(t, VerifyRequestSignature(req, payload[1:]))

	// Signature covers the bundle.
	err = VerifyRequestSignature(req, append(payload[1:], ' '))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// And the ephemeral key.
	other, err := sk.CreateRequestParams(payload)
	require.NoError(t, err)
	swapped := *req
	swapped.EncKey = other.Ephemeral.PublicKey
	assert.ErrorIs(t, VerifyRequestSignature(&swapped, payload[1:]), ErrInvalidSignature)

	truncated := *req
	truncated.RequestSignature = req.RequestSignature[:32]
	assert.ErrorIs(t, VerifyRequestSignature(&truncated, payload[1:]), ErrInvalidSignature)
}
