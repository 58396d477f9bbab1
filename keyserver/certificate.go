package keyserver

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

const (
	// MaxTTLMinutes is the longest certificate lifetime the key server honors.
	MaxTTLMinutes = 30

	// MaxCreationTimeSkew is how far in the future a certificate creation time may lie.
	MaxCreationTimeSkew = 10 * time.Second
)

// CheckCertificate validates a session certificate for pkg at time now.
//
// The certificate is expired once now is past creation time plus TTL; unlike
// the issuing side, no clock-skew allowance is applied to the deadline. A
// creation time more than MaxCreationTimeSkew ahead of now is rejected, so a
// certificate is never honored for longer than its TTL. The attestation
// message is rebuilt from the certificate fields and pkg, and the signature
// must recover to the certificate user.
func CheckCertificate(cert *interfaces.Certificate, pkg interfaces.Address, now time.Time) error {
	if cert.TTLMin == 0 || cert.TTLMin > MaxTTLMinutes {
		return fmt.Errorf("%w: ttl %d out of range", ErrInvalidCertificate, cert.TTLMin)
	}
	if cert.CreationTime <= 0 {
		return fmt.Errorf("%w: missing creation time", ErrInvalidCertificate)
	}
	if _, err := sessionVerificationKey(cert); err != nil {
		return err
	}

	deadline := cert.CreationTime + int64(cert.TTLMin)*time.Minute.Milliseconds()
	if cert.CreationTime > now.Add(MaxCreationTimeSkew).UnixMilli() {
		return fmt.Errorf("%w: creation time %s is in the future", ErrInvalidCertificate, time.UnixMilli(cert.CreationTime).UTC().Format(time.RFC3339))
	}
	if now.UnixMilli() > deadline {
		return fmt.Errorf("%w: expired at %s", ErrCertificateExpired, time.UnixMilli(deadline).UTC().Format(time.RFC3339))
	}

	if err := cryptoutils.VerifyPersonalSignature(cert.User, cryptoutils.CertificateMessage(cert, pkg), cert.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return nil
}

// VerifyRequestSignature checks that the request signature over the canonical
// (ptb, enc_key, enc_verification_key) encoding verifies under the certified
// session key.
func VerifyRequestSignature(req *interfaces.FetchKeyRequest, ptb []byte) error {
	vk, err := sessionVerificationKey(&req.Certificate)
	if err != nil {
		return err
	}
	if len(req.RequestSignature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, ed25519.SignatureSize, len(req.RequestSignature))
	}

	encoded := cryptoutils.RequestFormat{
		PTB:                ptb,
		EncKey:             req.EncKey,
		EncVerificationKey: req.EncVerificationKey,
	}.Encode()
	if !ed25519.Verify(vk, encoded, req.RequestSignature) {
		return ErrInvalidSignature
	}
	return nil
}

func sessionVerificationKey(cert *interfaces.Certificate) (ed25519.PublicKey, error) {
	vk, err := base64.StdEncoding.DecodeString(cert.SessionVK)
	if err != nil {
		return nil, fmt.Errorf("%w: session_vk: %v", ErrInvalidCertificate, err)
	}
	if len(vk) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: session_vk must be %d bytes", ErrInvalidCertificate, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(vk), nil
}
