package sessionkey

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

// fixedClock is a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// countingSigner wraps a signer and records how often it was asked to sign.
type countingSigner struct {
	interfaces.Signer
	calls atomic.Int32
}

func (s *countingSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.calls.Add(1)
	return s.Signer.SignPersonalMessage(ctx, message)
}

// blockingSigner never answers until ctx is done.
type blockingSigner struct {
	address interfaces.Address
	started chan struct{}
}

func (s *blockingSigner) Address() interfaces.Address { return s.address }

func (s *blockingSigner) SignPersonalMessage(ctx context.Context, _ []byte) ([]byte, error) {
	close(s.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

// rejectingSigner always declines.
type rejectingSigner struct {
	address interfaces.Address
}

func (s *rejectingSigner) Address() interfaces.Address { return s.address }

func (s *rejectingSigner) SignPersonalMessage(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: user closed the prompt", signer.ErrSigningRejected)
}

func newTestSigner(t *testing.T) *signer.PrivateKeySigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer.NewPrivateKeySigner(key)
}

func TestNew_TTLBounds(t *testing.T) {
	s := newTestSigner(t)
	identity := s.Address().String()

	for ttl := MinTTLMinutes; ttl <= MaxTTLMinutes; ttl++ {
		_, err := New(identity, testScope, ttl)
		assert.NoError(t, err, "ttl %d should be accepted", ttl)
	}

	for _, ttl := range []int{-5, 0, 31, 60, 1000} {
		_, err := New(identity, testScope, ttl)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, "ttl %d should be rejected", ttl)
	}
}

func TestNew_MalformedAddresses(t *testing.T) {
	s := newTestSigner(t)

	testCases := []struct {
		name     string
		identity string
		scope    string
	}{
		{"short identity", "0x1234", testScope},
		{"non-hex identity", "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", testScope},
		{"empty scope", s.Address().String(), ""},
		{"32-byte scope", s.Address().String(), "0x" + strings.Repeat("bb", 32)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.identity, tc.scope, 10)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestNew_SignerIdentityMismatch(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)

	_, err := New(other.Address().String(), testScope, 10, WithSigner(s))
	assert.ErrorIs(t, err, ErrSignerIdentityMismatch)

	_, err = New(s.Address().String(), testScope, 10, WithSigner(s))
	assert.NoError(t, err)
}

func TestProtocolPackageID(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 10)
	require.NoError(t, err)

	id := sk.ProtocolPackageID()
	assert.Equal(t, make([]byte, 12), id[:12])
	assert.Equal(t, bytes.Repeat([]byte{0xbb}, 20), id[12:])
	assert.Equal(t, "0x"+strings.Repeat("bb", 20), sk.PackageID().String())
}

func TestIsExpired_SkewBoundary(t *testing.T) {
	s := newTestSigner(t)
	created := time.UnixMilli(1_700_000_000_123)
	clock := newFixedClock(created)

	sk, err := New(s.Address().String(), testScope, 15, WithClock(clock.Now))
	require.NoError(t, err)
	assert.False(t, sk.IsExpired(), "fresh session must not be expired")

	deadline := created.UnixMilli() + 15*60_000 - 10_000

	// createdAt + ttl - 10001ms
	clock.Set(time.UnixMilli(created.UnixMilli() + 15*60_000 - 10_001))
	assert.False(t, sk.IsExpired())

	// createdAt + ttl - 9999ms
	clock.Set(time.UnixMilli(created.UnixMilli() + 15*60_000 - 9_999))
	assert.True(t, sk.IsExpired())

	clock.Set(time.UnixMilli(deadline))
	assert.True(t, sk.IsExpired())
	assert.Equal(t, deadline, sk.ExpiresAt().UnixMilli())
}

func TestAttestationMessage_Format(t *testing.T) {
	s := newTestSigner(t)
	created := time.Date(2024, 3, 9, 7, 5, 4, 987_000_000, time.UTC)

	sk, err := New(s.Address().String(), "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", 15, WithClock(func() time.Time { return created }))
	require.NoError(t, err)

	expected := fmt.Sprintf("Accessing keys of package 0x%s for 15 mins from 2024-03-09 07:05:04 UTC, session key %s",
		strings.Repeat("bb", 20), base64.StdEncoding.EncodeToString(sk.SessionVerificationKey()))
	assert.Equal(t, expected, string(sk.AttestationMessage()))
}

func TestSetAttestationSignature(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)

	sk, err := New(s.Address().String(), testScope, 15)
	require.NoError(t, err)

	// Signed by a different identity.
	badSig, err := other.SignPersonalMessage(context.Background(), sk.AttestationMessage())
	require.NoError(t, err)
	err = sk.SetAttestationSignature(badSig)
	assert.ErrorIs(t, err, ErrInvalidAttestation)
	assert.False(t, sk.HasAttestation())

	// The bad signature was not persisted.
	_, err = sk.GetCertificate(context.Background())
	assert.ErrorIs(t, err, ErrMissingAttestation)

	// Signed over a different message.
	wrongMsg, err := s.SignPersonalMessage(context.Background(), []byte("Accessing keys of package something else"))
	require.NoError(t, err)
	assert.ErrorIs(t, sk.SetAttestationSignature(wrongMsg), ErrInvalidAttestation)

	// Garbage.
	assert.ErrorIs(t, sk.SetAttestationSignature([]byte{1, 2, 3}), ErrInvalidAttestation)

	goodSig, err := s.SignPersonalMessage(context.Background(), sk.AttestationMessage())
	require.NoError(t, err)
	require.NoError(t, sk.SetAttestationSignature(goodSig))
	assert.True(t, sk.HasAttestation())

	// A later bad signature leaves the good one in place.
	assert.ErrorIs(t, sk.SetAttestationSignature(badSig), ErrInvalidAttestation)
	cert, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(goodSig), []byte(cert.Signature))
}

func TestGetCertificate_MissingAttestation(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 5)
	require.NoError(t, err)

	_, err = sk.GetCertificate(context.Background())
	assert.ErrorIs(t, err, ErrMissingAttestation)
}

func TestGetCertificate_WithSigner(t *testing.T) {
	s := &countingSigner{Signer: newTestSigner(t)}
	created := time.UnixMilli(1_700_000_000_000)

	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s), WithClock(func() time.Time { return created }))
	require.NoError(t, err)

	cert, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), cert.User)
	assert.Equal(t, created.UnixMilli(), cert.CreationTime)
	assert.Equal(t, uint16(15), cert.TTLMin)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sk.SessionVerificationKey()), cert.SessionVK)
	require.NoError(t, cryptoutils.VerifyPersonalSignature(s.Address(), sk.AttestationMessage(), cert.Signature))

	again, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cert, again)
	assert.Equal(t, int32(1), s.calls.Load(), "certificate re-derivation must not prompt the signer")
}

func TestGetCertificate_ConcurrentCallersPromptOnce(t *testing.T) {
	s := &countingSigner{Signer: newTestSigner(t)}
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sk.GetCertificate(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestGetCertificate_SignerRejected(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(&rejectingSigner{address: s.Address()}))
	require.NoError(t, err)

	_, err = sk.GetCertificate(context.Background())
	assert.ErrorIs(t, err, signer.ErrSigningRejected)
	assert.False(t, sk.HasAttestation())
}

func TestGetCertificate_CancelledLeavesUnsigned(t *testing.T) {
	s := newTestSigner(t)
	bs := &blockingSigner{address: s.Address(), started: make(chan struct{})}
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(bs))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sk.GetCertificate(ctx)
		done <- err
	}()

	<-bs.started
	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, sk.HasAttestation())

	// A signature can still be supplied afterwards.
	sig, err := s.SignPersonalMessage(context.Background(), sk.AttestationMessage())
	require.NoError(t, err)
	require.NoError(t, sk.SetAttestationSignature(sig))
	_, err = sk.GetCertificate(context.Background())
	assert.NoError(t, err)
}

// lateSigner ignores ctx and answers after the caller has cancelled.
type lateSigner struct {
	interfaces.Signer
	cancel context.CancelFunc
}

func (s *lateSigner) SignPersonalMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := s.Signer.SignPersonalMessage(context.Background(), message)
	s.cancel()
	return sig, err
}

func TestGetCertificate_LateSignatureDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &lateSigner{Signer: newTestSigner(t), cancel: cancel}
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s))
	require.NoError(t, err)

	cert, err := sk.GetCertificate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, cert)
	assert.False(t, sk.HasAttestation())
}

func TestGetCertificate_SignerReturnsBadSignature(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)

	// Reports the session identity but signs with another key.
	liar := &impersonatingSigner{address: s.Address(), inner: other}
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(liar))
	require.NoError(t, err)

	_, err = sk.GetCertificate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidAttestation)
	assert.False(t, sk.HasAttestation())
}

type impersonatingSigner struct {
	address interfaces.Address
	inner   interfaces.Signer
}

func (s *impersonatingSigner) Address() interfaces.Address { return s.address }

func (s *impersonatingSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	return s.inner.SignPersonalMessage(ctx, message)
}

func TestCreateRequestParams(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s))
	require.NoError(t, err)

	payload := []byte{0x01, 0x02, 0x03}
	p1, err := sk.CreateRequestParams(payload)
	require.NoError(t, err)
	p2, err := sk.CreateRequestParams(payload)
	require.NoError(t, err)

	assert.NotEqual(t, p1.DecryptionKey(), p2.DecryptionKey())
	assert.NotEqual(t, p1.Ephemeral.PublicKey, p2.Ephemeral.PublicKey)
	assert.NotEqual(t, p1.RequestSignature, p2.RequestSignature)

	vk := sk.SessionVerificationKey()
	for _, p := range []*RequestParams{p1, p2} {
		assert.Equal(t, []byte{0x02, 0x03}, p.PTB, "framing byte must be stripped")
		assert.Equal(t, cryptoutils.EncodeRequest(p.PTB, p.Ephemeral.PublicKey, p.Ephemeral.VerificationKey), p.EncodedRequest)
		assert.True(t, ed25519.Verify(vk, p.EncodedRequest, p.RequestSignature))
		require.NoError(t, cryptoutils.VerifyEphemeralKeys(p.Ephemeral.PublicKey, p.Ephemeral.VerificationKey))
	}

	// A signature does not transfer to the other request.
	assert.False(t, ed25519.Verify(vk, p2.EncodedRequest, p1.RequestSignature))
}

func TestCreateRequestParams_Concurrent(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15)
	require.NoError(t, err)

	const n = 16
	results := make([]*RequestParams, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := sk.CreateRequestParams([]byte{0x00, byte(i)})
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	vk := sk.SessionVerificationKey()
	for i, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, []byte{byte(i)}, p.PTB)
		assert.True(t, ed25519.Verify(vk, p.EncodedRequest, p.RequestSignature))
		key := string(p.Ephemeral.PublicKey)
		assert.False(t, seen[key], "ephemeral key reused")
		seen[key] = true
	}
}

func TestCreateRequestParams_ExpiredGeneratesNoKeys(t *testing.T) {
	s := newTestSigner(t)
	created := time.UnixMilli(1_700_000_000_000)
	clock := newFixedClock(created)

	var generated atomic.Int32
	gen := func() (*cryptoutils.EphemeralKeypair, error) {
		generated.Add(1)
		return cryptoutils.GenerateEphemeralKeypair()
	}

	sk, err := New(s.Address().String(), testScope, 1, WithClock(clock.Now), WithEphemeralKeyGenerator(gen))
	require.NoError(t, err)

	_, err = sk.CreateRequestParams([]byte{0x00, 0x01})
	require.NoError(t, err)
	require.Equal(t, int32(1), generated.Load())

	clock.Set(created.Add(time.Minute))
	for _, payload := range [][]byte{nil, {0x00}, {0x00, 0x01, 0x02}} {
		_, err = sk.CreateRequestParams(payload)
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), generated.Load(), "expired session must not generate ephemeral keys")
}

func TestCreateRequestParams_EmptyPayload(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15)
	require.NoError(t, err)

	_, err = sk.CreateRequestParams(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	p, err := sk.CreateRequestParams([]byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, p.PTB)
}

func TestRequestParams_Release(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15)
	require.NoError(t, err)

	p, err := sk.CreateRequestParams([]byte{0x00, 0x01})
	require.NoError(t, err)
	require.Len(t, p.DecryptionKey(), cryptoutils.EphemeralSecretLength)

	p.Release()
	assert.Nil(t, p.DecryptionKey())
	assert.True(t, p.Ephemeral.Released())
}

func TestRequestParams_FetchKeyRequest(t *testing.T) {
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s))
	require.NoError(t, err)

	cert, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)

	p, err := sk.CreateRequestParams([]byte{0x00, 0xaa, 0xbb})
	require.NoError(t, err)

	req := p.FetchKeyRequest(cert)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xaa, 0xbb}), req.PTB)
	assert.Equal(t, p.Ephemeral.PublicKey, req.EncKey)
	assert.Equal(t, p.RequestSignature, req.RequestSignature)
	assert.Equal(t, *cert, req.Certificate)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(body), base64.StdEncoding.EncodeToString(p.DecryptionKey()))
}

func TestEndToEnd(t *testing.T) {
	// The identity 0xAA..AA has no known key, so this scenario recovers a key
	// for a real signer and checks the same flow against its address.
	s := newTestSigner(t)
	sk, err := New(s.Address().String(), "0x"+strings.Repeat("BB", 20), 15)
	require.NoError(t, err)

	sig, err := s.SignPersonalMessage(context.Background(), sk.AttestationMessage())
	require.NoError(t, err)
	require.NoError(t, sk.SetAttestationSignature(sig))

	cert, err := sk.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), cert.User)
	assert.Equal(t, uint16(15), cert.TTLMin)
	assert.Equal(t, sk.CreatedAt().UnixMilli(), cert.CreationTime)

	p1, err := sk.CreateRequestParams([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	p2, err := sk.CreateRequestParams([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.NotEqual(t, p1.DecryptionKey(), p2.DecryptionKey())

	vk, err := base64.StdEncoding.DecodeString(cert.SessionVK)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(vk, p1.EncodedRequest, p1.RequestSignature))
	assert.True(t, ed25519.Verify(vk, p2.EncodedRequest, p2.RequestSignature))
}

func TestSetAttestationSignature_ForeignSignerRejected(t *testing.T) {
	identity := "0x" + strings.Repeat("aa", 20)
	sk, err := New(identity, "0x"+strings.Repeat("bb", 20), 15)
	require.NoError(t, err)
	assert.Equal(t, identity, sk.Address().String())

	s := newTestSigner(t)
	sig, err := s.SignPersonalMessage(context.Background(), sk.AttestationMessage())
	require.NoError(t, err)

	err = sk.SetAttestationSignature(sig)
	assert.ErrorIs(t, err, ErrInvalidAttestation)
	assert.False(t, sk.HasAttestation())
}

func TestLoggingNeverLeaksSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := newTestSigner(t)
	sk, err := New(s.Address().String(), testScope, 15, WithSigner(s), WithLogger(logger))
	require.NoError(t, err)

	_, err = sk.GetCertificate(context.Background())
	require.NoError(t, err)

	p, err := sk.CreateRequestParams([]byte{0x00, 0x01})
	require.NoError(t, err)

	export := sk.Export()
	logger.Info("exported", "session", export)

	out := buf.String()
	assert.NotContains(t, out, fmt.Sprintf("%x", p.DecryptionKey()))
	assert.NotContains(t, out, base64.StdEncoding.EncodeToString(p.DecryptionKey()))
	assert.NotContains(t, out, fmt.Sprintf("%x", export.SessionKey))
	assert.NotContains(t, out, base64.StdEncoding.EncodeToString(export.SessionKey))
	assert.Contains(t, out, "Signed decryption request")
}
