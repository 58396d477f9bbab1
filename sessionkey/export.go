package sessionkey

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/seal-session/interfaces"
)

// ExportedSessionKey is the full state of a session, including the session
// signing secret.
//
// It refuses generic serialization: MarshalJSON and MarshalText fail, and
// String, GoString and LogValue redact the secret. Persisting it is an explicit
// act through MarshalSensitive, and the caller becomes responsible for storing
// the result securely (see storage.SessionStore, which seals it).
type ExportedSessionKey struct {
	Address                  interfaces.Address
	PackageID                interfaces.Address
	CreationTimeMs           int64
	TTLMin                   int
	PersonalMessageSignature []byte // nil until the session is certified
	SessionKey               []byte // 32-byte Ed25519 seed
}

// exportWire is the explicit on-disk form of an export.
type exportWire struct {
	Address                  interfaces.Address `json:"address"`
	PackageID                interfaces.Address `json:"packageId"`
	CreationTimeMs           int64              `json:"creationTimeMs"`
	TTLMin                   int                `json:"ttlMin"`
	PersonalMessageSignature hexutil.Bytes      `json:"personalMessageSignature,omitempty"`
	SessionKey               []byte             `json:"sessionKey"`
}

// Export returns the session state. The result contains the session signing secret.
func (k *SessionKey) Export() *ExportedSessionKey {
	return &ExportedSessionKey{
		Address:                  k.identity,
		PackageID:                k.scope,
		CreationTimeMs:           k.createdAtMs,
		TTLMin:                   k.ttlMinutes,
		PersonalMessageSignature: bytes.Clone(k.storedSignature()),
		SessionKey:               bytes.Clone(k.signingKey.Seed()),
	}
}

// Import rebuilds a session from exported state.
//
// The creation time and signing key are restored as exported. A stored
// attestation signature is re-verified exactly as SetAttestationSignature does;
// it is never trusted as-is. Import does not reject expired sessions, they
// simply cannot sign requests.
func Import(data *ExportedSessionKey, opts ...Option) (*SessionKey, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil export", ErrInvalidConfiguration)
	}
	if len(data.SessionKey) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: session key must be a %d-byte seed", ErrInvalidConfiguration, ed25519.SeedSize)
	}

	if data.CreationTimeMs <= 0 {
		return nil, fmt.Errorf("%w: creation time %d", ErrInvalidConfiguration, data.CreationTimeMs)
	}

	o := buildOptions(opts)
	k, err := newSessionKey(data.Address.String(), data.PackageID.String(), data.TTLMin, data.CreationTimeMs, ed25519.NewKeyFromSeed(data.SessionKey), o)
	if err != nil {
		return nil, err
	}

	if len(data.PersonalMessageSignature) > 0 {
		if err := k.SetAttestationSignature(data.PersonalMessageSignature); err != nil {
			return nil, err
		}
	}

	k.log.Debug("Imported session key", "address", k.identity.String(), "packageID", k.scope.String(), "expired", k.IsExpired())
	return k, nil
}

// MarshalSensitive encodes the export, secret included, as JSON.
func (e ExportedSessionKey) MarshalSensitive() ([]byte, error) {
	return json.Marshal(exportWire{
		Address:                  e.Address,
		PackageID:                e.PackageID,
		CreationTimeMs:           e.CreationTimeMs,
		TTLMin:                   e.TTLMin,
		PersonalMessageSignature: e.PersonalMessageSignature,
		SessionKey:               e.SessionKey,
	})
}

// UnmarshalSensitive decodes data produced by MarshalSensitive.
func UnmarshalSensitive(data []byte) (*ExportedSessionKey, error) {
	var w exportWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return &ExportedSessionKey{
		Address:                  w.Address,
		PackageID:                w.PackageID,
		CreationTimeMs:           w.CreationTimeMs,
		TTLMin:                   w.TTLMin,
		PersonalMessageSignature: w.PersonalMessageSignature,
		SessionKey:               w.SessionKey,
	}, nil
}

// Release zeroes the session secret held by the export.
func (e *ExportedSessionKey) Release() {
	for i := range e.SessionKey {
		e.SessionKey[i] = 0
	}
	e.SessionKey = nil
}

// MarshalJSON refuses generic serialization.
func (e ExportedSessionKey) MarshalJSON() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalText refuses generic serialization.
func (e ExportedSessionKey) MarshalText() ([]byte, error) {
	return nil, ErrNotSerializable
}

// String redacts the session secret.
func (e ExportedSessionKey) String() string {
	return fmt.Sprintf("ExportedSessionKey{address: %s, packageId: %s, creationTimeMs: %d, ttlMin: %d, signed: %t, sessionKey: <redacted>}",
		e.Address, e.PackageID, e.CreationTimeMs, e.TTLMin, len(e.PersonalMessageSignature) > 0)
}

// GoString redacts the session secret.
func (e ExportedSessionKey) GoString() string {
	return e.String()
}

// LogValue implements slog.LogValuer and redacts the session secret.
func (e ExportedSessionKey) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("address", e.Address.String()),
		slog.String("packageId", e.PackageID.String()),
		slog.Int64("creationTimeMs", e.CreationTimeMs),
		slog.Int("ttlMin", e.TTLMin),
	)
}
