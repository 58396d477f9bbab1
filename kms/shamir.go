package kms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/keyserver"
)

// MasterKeySize is the length of the BLS12-381 master secret.
const MasterKeySize = 32

var (
	ErrAlreadyUnlocked    = errors.New("KMS is already unlocked")
	ErrLocked             = errors.New("KMS is locked - need more shares to unlock")
	ErrUnknownAdmin       = errors.New("share is not signed by a registered admin")
	ErrDuplicateShare     = errors.New("admin already submitted a share")
	ErrMasterKeyMismatch  = errors.New("reconstructed master key does not match the expected public key")
	ErrInvalidShareConfig = errors.New("invalid share configuration")
)

// SignedShare is a share together with its admin's personal_sign signature.
type SignedShare struct {
	Share     hexutil.Bytes `json:"share"`
	Signature hexutil.Bytes `json:"signature"`
}

// ShareMessage is the message an admin signs to submit share.
func ShareMessage(share []byte) []byte {
	return []byte(fmt.Sprintf("Submitting seal-session master key share %x", crypto.Keccak256(share)))
}

// SignShare signs share with an admin's signer.
func SignShare(ctx context.Context, share []byte, s interfaces.Signer) (*SignedShare, error) {
	sig, err := s.SignPersonalMessage(ctx, ShareMessage(share))
	if err != nil {
		return nil, err
	}
	return &SignedShare{Share: bytes.Clone(share), Signature: sig}, nil
}

// SplitMasterKey splits masterKey into parts shares, any threshold of which reconstruct it.
func SplitMasterKey(masterKey []byte, parts, threshold int) ([][]byte, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes", ErrInvalidShareConfig, MasterKeySize)
	}
	if threshold < 2 {
		return nil, fmt.Errorf("%w: threshold must be at least 2", ErrInvalidShareConfig)
	}
	if parts < threshold {
		return nil, fmt.Errorf("%w: total shares must be at least equal to threshold", ErrInvalidShareConfig)
	}

	shares, err := shamir.Split(masterKey, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master key: %w", err)
	}
	return shares, nil
}

// ShamirConfig contains configuration parameters for recovering the master key.
type ShamirConfig struct {
	// Threshold is the minimum number of shares required to reconstruct the master key.
	Threshold int
	// Admins are the addresses allowed to submit shares, one share each.
	Admins []interfaces.Address
	// MasterPublicKey, when set, is compared against the reconstructed key.
	MasterPublicKey []byte
}

// ShamirKMS collects admin shares and holds the reconstructed master key in memory.
type ShamirKMS struct {
	mu              sync.RWMutex
	threshold       int
	admins          map[interfaces.Address]bool
	receivedShares  map[interfaces.Address][]byte
	masterPublicKey []byte

	extractor *keyserver.MasterKeyExtractor
}

// NewShamirKMSRecovery creates a locked KMS waiting for shares.
func NewShamirKMSRecovery(config ShamirConfig) (*ShamirKMS, error) {
	if config.Threshold < 2 {
		return nil, fmt.Errorf("%w: threshold must be at least 2", ErrInvalidShareConfig)
	}

	admins := make(map[interfaces.Address]bool, len(config.Admins))
	for _, admin := range config.Admins {
		if admin.IsZero() {
			return nil, fmt.Errorf("%w: zero admin address", ErrInvalidShareConfig)
		}
		admins[admin] = true
	}
	if len(admins) < config.Threshold {
		return nil, fmt.Errorf("%w: %d admins cannot meet threshold %d", ErrInvalidShareConfig, len(admins), config.Threshold)
	}

	return &ShamirKMS{
		threshold:       config.Threshold,
		admins:          admins,
		receivedShares:  make(map[interfaces.Address][]byte),
		masterPublicKey: bytes.Clone(config.MasterPublicKey),
	}, nil
}

// SubmitShare verifies the admin signature and stores the share. When the
// threshold is reached the master key is reconstructed and the KMS unlocks.
func (k *ShamirKMS) SubmitShare(signed *SignedShare) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.extractor != nil {
		return ErrAlreadyUnlocked
	}

	admin, err := cryptoutils.RecoverPersonalSigner(ShareMessage(signed.Share), signed.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownAdmin, err)
	}
	if !k.admins[admin] {
		return fmt.Errorf("%w: %s", ErrUnknownAdmin, admin)
	}
	if _, ok := k.receivedShares[admin]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateShare, admin)
	}

	k.receivedShares[admin] = bytes.Clone(signed.Share)
	return k.tryReconstruct()
}

// tryReconstruct combines the shares once the threshold is met. Shares are
// wiped whether or not reconstruction succeeds.
func (k *ShamirKMS) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}
	defer k.resetShares()

	masterKey, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct master key: %w", err)
	}
	defer clear(masterKey)

	extractor, err := keyserver.NewMasterKeyExtractor(masterKey)
	if err != nil {
		return fmt.Errorf("failed to reconstruct master key: %w", err)
	}
	if k.masterPublicKey != nil && !bytes.Equal(extractor.PublicKey(), k.masterPublicKey) {
		return ErrMasterKeyMismatch
	}

	k.extractor = extractor
	return nil
}

func (k *ShamirKMS) resetShares() {
	for _, share := range k.receivedShares {
		clear(share)
	}
	k.receivedShares = make(map[interfaces.Address][]byte)
}

// Received returns how many shares are held towards the threshold.
func (k *ShamirKMS) Received() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.receivedShares)
}

// IsUnlocked reports whether the master key has been reconstructed.
func (k *ShamirKMS) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.extractor != nil
}

// Extractor returns the key extractor built from the reconstructed master key.
func (k *ShamirKMS) Extractor() (*keyserver.MasterKeyExtractor, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.extractor == nil {
		return nil, ErrLocked
	}
	return k.extractor, nil
}
