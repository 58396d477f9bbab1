package sessionkey

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

const (
	// MinTTLMinutes is the shortest session lifetime.
	MinTTLMinutes = 1

	// MaxTTLMinutes is the longest session lifetime a key server accepts.
	MaxTTLMinutes = 30

	// ClockSkewAllowance is subtracted from the TTL deadline to tolerate drift
	// between the issuer's and the key server's clocks.
	ClockSkewAllowance = 10 * time.Second
)

// SessionKey is a short-lived Ed25519 signing key bound to an identity and a scope.
//
// The identity authorizes the session once by signing the attestation message;
// afterwards the session signs each decryption request itself. Identity, scope,
// creation time, TTL and the signing key never change after construction, so
// concurrent CreateRequestParams calls share no mutable state.
type SessionKey struct {
	identity    interfaces.Address
	scope       interfaces.Address
	createdAtMs int64
	ttlMinutes  int
	signingKey  ed25519.PrivateKey

	signer       interfaces.Signer
	log          *slog.Logger
	now          func() time.Time
	generateKeys EphemeralKeyGenerator

	// issuing serializes attestation issuance so only one signer prompt is outstanding.
	issuing chan struct{}

	mu                   sync.RWMutex
	attestationSignature []byte
}

// New creates a session for identity scoped to scope, valid for ttlMinutes.
//
// Both addresses must be 20-byte hex strings. When a signer is supplied with
// WithSigner it must sign for identity. A fresh Ed25519 signing key is generated.
func New(identity, scope string, ttlMinutes int, opts ...Option) (*SessionKey, error) {
	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session signing key: %w", err)
	}

	o := buildOptions(opts)
	return newSessionKey(identity, scope, ttlMinutes, o.now().UnixMilli(), signingKey, o)
}

func newSessionKey(identity, scope string, ttlMinutes int, createdAtMs int64, signingKey ed25519.PrivateKey, o *options) (*SessionKey, error) {
	identityAddr, err := interfaces.NewAddressFromHex(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: address %q: %v", ErrInvalidConfiguration, identity, err)
	}
	scopeAddr, err := interfaces.NewAddressFromHex(scope)
	if err != nil {
		return nil, fmt.Errorf("%w: package id %q: %v", ErrInvalidConfiguration, scope, err)
	}
	if ttlMinutes < MinTTLMinutes || ttlMinutes > MaxTTLMinutes {
		return nil, fmt.Errorf("%w: ttl %d, must be between %d and %d", ErrInvalidConfiguration, ttlMinutes, MinTTLMinutes, MaxTTLMinutes)
	}
	if o.signer != nil && o.signer.Address() != identityAddr {
		return nil, fmt.Errorf("%w: signer %s, session %s", ErrSignerIdentityMismatch, o.signer.Address(), identityAddr)
	}

	return &SessionKey{
		identity:     identityAddr,
		scope:        scopeAddr,
		createdAtMs:  createdAtMs,
		ttlMinutes:   ttlMinutes,
		signingKey:   signingKey,
		signer:       o.signer,
		log:          o.log,
		now:          o.now,
		generateKeys: o.generateKeys,
		issuing:      make(chan struct{}, 1),
	}, nil
}

// Address returns the identity that owns the session.
func (k *SessionKey) Address() interfaces.Address {
	return k.identity
}

// PackageID returns the scope in its native 20-byte width.
func (k *SessionKey) PackageID() interfaces.Address {
	return k.scope
}

// ProtocolPackageID returns the scope left-padded to the 32-byte protocol width.
func (k *SessionKey) ProtocolPackageID() interfaces.ProtocolID {
	return k.scope.ProtocolID()
}

// CreatedAt returns the session creation time.
func (k *SessionKey) CreatedAt() time.Time {
	return time.UnixMilli(k.createdAtMs)
}

// TTLMinutes returns the session lifetime in minutes.
func (k *SessionKey) TTLMinutes() int {
	return k.ttlMinutes
}

// SessionVerificationKey returns a copy of the Ed25519 session public key.
func (k *SessionKey) SessionVerificationKey() ed25519.PublicKey {
	return bytes.Clone(k.signingKey.Public().(ed25519.PublicKey))
}

// ExpiresAt returns the instant from which the session counts as expired.
func (k *SessionKey) ExpiresAt() time.Time {
	return time.UnixMilli(k.deadlineMs())
}

func (k *SessionKey) deadlineMs() int64 {
	return k.createdAtMs + int64(k.ttlMinutes)*time.Minute.Milliseconds() - ClockSkewAllowance.Milliseconds()
}

// IsExpired reports whether the TTL window, shortened by ClockSkewAllowance, has elapsed.
// It is recomputed from the clock on every call.
func (k *SessionKey) IsExpired() bool {
	return k.now().UnixMilli() >= k.deadlineMs()
}

// AttestationMessage returns the text the identity signs to authorize this session.
func (k *SessionKey) AttestationMessage() []byte {
	return cryptoutils.AttestationMessage(k.scope, k.ttlMinutes, k.createdAtMs, k.SessionVerificationKey())
}

// HasAttestation reports whether a verified attestation signature is stored.
func (k *SessionKey) HasAttestation() bool {
	return k.storedSignature() != nil
}

func (k *SessionKey) storedSignature() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.attestationSignature
}

// SetAttestationSignature verifies sig against a freshly derived attestation
// message and the session identity, and stores it on success. On failure the
// previously stored signature, if any, is left untouched.
func (k *SessionKey) SetAttestationSignature(sig []byte) error {
	if err := k.verifyAttestation(sig); err != nil {
		return err
	}

	k.mu.Lock()
	k.attestationSignature = bytes.Clone(sig)
	k.mu.Unlock()

	k.log.Debug("Attestation signature accepted", "address", k.identity.String(), "packageID", k.scope.String())
	return nil
}

func (k *SessionKey) verifyAttestation(sig []byte) error {
	if err := cryptoutils.VerifyPersonalSignature(k.identity, k.AttestationMessage(), sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAttestation, err)
	}
	return nil
}

// GetCertificate returns the certificate proving the identity authorized this session.
//
// Without a stored signature the supplied signer is asked for one; this is the
// only call that may block on an external party, and ctx bounds that wait. If
// ctx is cancelled or the signer fails, the session stays unsigned and the
// error is returned unchanged. Once a signature is stored, repeated calls do
// not prompt the signer again.
func (k *SessionKey) GetCertificate(ctx context.Context) (*interfaces.Certificate, error) {
	if sig := k.storedSignature(); sig != nil {
		return k.certificate(sig)
	}

	select {
	case k.issuing <- struct{}{}:
		defer func() { <-k.issuing }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Another caller may have finished issuance while this one waited.
	if sig := k.storedSignature(); sig != nil {
		return k.certificate(sig)
	}

	if k.signer == nil {
		return nil, ErrMissingAttestation
	}

	k.log.Info("Requesting attestation signature", "address", k.identity.String(), "packageID", k.scope.String(), "ttlMin", k.ttlMinutes)
	sig, err := k.signer.SignPersonalMessage(ctx, k.AttestationMessage())
	if err != nil {
		return nil, err
	}
	// A signature that arrives after cancellation is discarded.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := k.SetAttestationSignature(sig); err != nil {
		return nil, err
	}
	return k.certificate(sig)
}

func (k *SessionKey) certificate(sig []byte) (*interfaces.Certificate, error) {
	if err := k.verifyAttestation(sig); err != nil {
		return nil, err
	}

	return &interfaces.Certificate{
		User:         k.identity,
		SessionVK:    base64.StdEncoding.EncodeToString(k.SessionVerificationKey()),
		CreationTime: k.createdAtMs,
		TTLMin:       uint16(k.ttlMinutes),
		Signature:    bytes.Clone(sig),
	}, nil
}
