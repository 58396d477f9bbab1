package cryptoutils

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ruteri/seal-session/interfaces"
)

const (
	// EphemeralSecretLength is the size of a serialized BLS12-381 scalar.
	EphemeralSecretLength = fr.Bytes

	// EphemeralPublicKeyLength is the size of a compressed G1 point.
	EphemeralPublicKeyLength = bls12381.SizeOfG1AffineCompressed

	// EphemeralVerificationKeyLength is the size of a compressed G2 point.
	EphemeralVerificationKeyLength = bls12381.SizeOfG2AffineCompressed
)

var (
	// ErrSensitiveMaterial is returned by serialization paths that refuse to encode secrets.
	ErrSensitiveMaterial = errors.New("refusing to serialize sensitive key material")

	// ErrInvalidEphemeralKey is returned when ephemeral key material does not parse or does not match.
	ErrInvalidEphemeralKey = errors.New("invalid ephemeral key material")
)

// EphemeralKeypair is a single-use ElGamal keypair on BLS12-381.
//
// The public key (secret·g1) is what a key server encrypts its reply to; the
// verification key (secret·g2) lets the server check that the requester knows
// the discrete log of the public key. The secret never leaves the process:
// it is excluded from JSON, text and structured-log output. Call Release
// once the decryption round trip completes.
type EphemeralKeypair struct {
	secret          []byte
	PublicKey       []byte
	VerificationKey []byte
}

// GenerateEphemeralKeypair draws a fresh non-zero scalar from crypto/rand.
// It holds no shared state and is safe to call concurrently.
func GenerateEphemeralKeypair() (*EphemeralKeypair, error) {
	var sk fr.Element
	for sk.IsZero() {
		if _, err := sk.SetRandom(); err != nil {
			return nil, fmt.Errorf("failed to sample ephemeral scalar: %w", err)
		}
	}
	return ephemeralFromScalar(&sk), nil
}

func ephemeralFromScalar(sk *fr.Element) *EphemeralKeypair {
	_, _, g1, g2 := bls12381.Generators()
	s := sk.BigInt(new(big.Int))

	var pk bls12381.G1Affine
	pk.ScalarMultiplication(&g1, s)
	var vk bls12381.G2Affine
	vk.ScalarMultiplication(&g2, s)

	skBytes := sk.Bytes()
	pkBytes := pk.Bytes()
	vkBytes := vk.Bytes()

	return &EphemeralKeypair{
		secret:          append([]byte(nil), skBytes[:]...),
		PublicKey:       append([]byte(nil), pkBytes[:]...),
		VerificationKey: append([]byte(nil), vkBytes[:]...),
	}
}

func scalarFromBytes(b []byte) (*fr.Element, error) {
	if len(b) != EphemeralSecretLength {
		return nil, fmt.Errorf("%w: secret must be %d bytes", ErrInvalidEphemeralKey, EphemeralSecretLength)
	}
	if new(big.Int).SetBytes(b).Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: secret is not a canonical scalar", ErrInvalidEphemeralKey)
	}
	var sk fr.Element
	sk.SetBytes(b)
	if sk.IsZero() {
		return nil, fmt.Errorf("%w: zero secret", ErrInvalidEphemeralKey)
	}
	return &sk, nil
}

// Secret returns a copy of the ephemeral secret scalar. The caller owns the copy
// and should zero it when done. Returns nil after Release.
func (k *EphemeralKeypair) Secret() []byte {
	if k.secret == nil {
		return nil
	}
	return append([]byte(nil), k.secret...)
}

// Released reports whether Release has been called.
func (k *EphemeralKeypair) Released() bool {
	return k.secret == nil
}

// Release zeroes the secret scalar. The keypair cannot decrypt afterwards.
func (k *EphemeralKeypair) Release() {
	for i := range k.secret {
		k.secret[i] = 0
	}
	k.secret = nil
}

// Decrypt recovers the compressed G1 point a key server encrypted to this keypair.
func (k *EphemeralKeypair) Decrypt(ct interfaces.ElGamalCiphertext) ([]byte, error) {
	if k.secret == nil {
		return nil, fmt.Errorf("%w: keypair released", ErrInvalidEphemeralKey)
	}
	return DecryptElGamal(k.secret, ct)
}

// String never includes the secret.
func (k *EphemeralKeypair) String() string {
	return fmt.Sprintf("EphemeralKeypair{enc_key: %x, secret: <redacted>}", k.PublicKey)
}

// GoString never includes the secret.
func (k *EphemeralKeypair) GoString() string {
	return k.String()
}

// LogValue implements slog.LogValuer and never includes the secret.
func (k *EphemeralKeypair) LogValue() slog.Value {
	return slog.GroupValue(slog.String("enc_key", fmt.Sprintf("%x", k.PublicKey)))
}

// MarshalJSON refuses to encode the keypair.
func (k *EphemeralKeypair) MarshalJSON() ([]byte, error) {
	return nil, ErrSensitiveMaterial
}

// MarshalText refuses to encode the keypair.
func (k *EphemeralKeypair) MarshalText() ([]byte, error) {
	return nil, ErrSensitiveMaterial
}

// VerifyEphemeralKeys checks e(publicKey, g2) == e(g1, verificationKey), i.e.
// that both points were derived from the same scalar.
func VerifyEphemeralKeys(publicKey, verificationKey []byte) error {
	var pk bls12381.G1Affine
	if _, err := pk.SetBytes(publicKey); err != nil {
		return fmt.Errorf("%w: enc_key: %v", ErrInvalidEphemeralKey, err)
	}
	var vk bls12381.G2Affine
	if _, err := vk.SetBytes(verificationKey); err != nil {
		return fmt.Errorf("%w: enc_verification_key: %v", ErrInvalidEphemeralKey, err)
	}

	_, _, g1, g2 := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1)

	ok, err := bls12381.PairingCheck([]bls12381.G1Affine{pk, negG1}, []bls12381.G2Affine{g2, vk})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEphemeralKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: verification key does not match public key", ErrInvalidEphemeralKey)
	}
	return nil
}

// EncryptElGamal encrypts the compressed G1 point message to publicKey:
// (r·g1, r·pk + m) for a fresh random r.
func EncryptElGamal(publicKey, message []byte) (interfaces.ElGamalCiphertext, error) {
	var pk, m bls12381.G1Affine
	if _, err := pk.SetBytes(publicKey); err != nil {
		return interfaces.ElGamalCiphertext{}, fmt.Errorf("%w: %v", ErrInvalidEphemeralKey, err)
	}
	if _, err := m.SetBytes(message); err != nil {
		return interfaces.ElGamalCiphertext{}, fmt.Errorf("invalid message point: %w", err)
	}

	var r fr.Element
	for r.IsZero() {
		if _, err := r.SetRandom(); err != nil {
			return interfaces.ElGamalCiphertext{}, fmt.Errorf("failed to sample randomness: %w", err)
		}
	}
	rb := r.BigInt(new(big.Int))

	_, _, g1, _ := bls12381.Generators()
	var c1 bls12381.G1Affine
	c1.ScalarMultiplication(&g1, rb)

	var rpk bls12381.G1Affine
	rpk.ScalarMultiplication(&pk, rb)
	var acc, mj bls12381.G1Jac
	acc.FromAffine(&rpk)
	mj.FromAffine(&m)
	acc.AddAssign(&mj)
	var c2 bls12381.G1Affine
	c2.FromJacobian(&acc)

	c1b := c1.Bytes()
	c2b := c2.Bytes()
	return interfaces.ElGamalCiphertext{C1: c1b[:], C2: c2b[:]}, nil
}

// DecryptElGamal computes c2 − secret·c1 and returns it compressed.
func DecryptElGamal(secret []byte, ct interfaces.ElGamalCiphertext) ([]byte, error) {
	sk, err := scalarFromBytes(secret)
	if err != nil {
		return nil, err
	}

	var c1, c2 bls12381.G1Affine
	if _, err := c1.SetBytes(ct.C1); err != nil {
		return nil, fmt.Errorf("invalid ciphertext c1: %w", err)
	}
	if _, err := c2.SetBytes(ct.C2); err != nil {
		return nil, fmt.Errorf("invalid ciphertext c2: %w", err)
	}

	var shared bls12381.G1Affine
	shared.ScalarMultiplication(&c1, sk.BigInt(new(big.Int)))

	var acc, sj bls12381.G1Jac
	acc.FromAffine(&c2)
	sj.FromAffine(&shared)
	acc.SubAssign(&sj)

	var m bls12381.G1Affine
	m.FromJacobian(&acc)
	mb := m.Bytes()
	return mb[:], nil
}
