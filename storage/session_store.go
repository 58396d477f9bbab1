package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/sessionkey"
)

// ErrWrongPassphrase is returned when a stored session cannot be opened, either
// because the passphrase is wrong or the blob was modified or moved.
var ErrWrongPassphrase = errors.New("stored session could not be opened")

// SessionStore persists session exports sealed under a passphrase.
type SessionStore struct {
	backend interfaces.StorageBackend
	log     *slog.Logger
}

// NewSessionStore wraps a backend.
func NewSessionStore(backend interfaces.StorageBackend, log *slog.Logger) *SessionStore {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &SessionStore{backend: backend, log: log}
}

// Save seals the export and stores it under the id derived from its identity and scope.
func (s *SessionStore) Save(ctx context.Context, export *sessionkey.ExportedSessionKey, passphrase []byte) (interfaces.SessionID, error) {
	if export == nil {
		return "", fmt.Errorf("%w: nil export", sessionkey.ErrInvalidConfiguration)
	}
	id := interfaces.NewSessionID(export.Address, export.PackageID)

	plaintext, err := export.MarshalSensitive()
	if err != nil {
		return "", err
	}
	defer clear(plaintext)

	sealed, err := cryptoutils.SealWithPassphrase(passphrase, plaintext, []byte(id))
	if err != nil {
		return "", err
	}

	if err := s.backend.Store(ctx, id, sealed); err != nil {
		return "", err
	}

	s.log.Info("Saved session",
		slog.String("session_id", string(id)),
		slog.String("backend", s.backend.Name()))
	return id, nil
}

// LoadExport fetches and opens the export stored under id. The caller owns the
// returned secret and should Release it.
func (s *SessionStore) LoadExport(ctx context.Context, id interfaces.SessionID, passphrase []byte) (*sessionkey.ExportedSessionKey, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	sealed, err := s.backend.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	plaintext, err := cryptoutils.OpenWithPassphrase(passphrase, sealed, []byte(id))
	if err != nil {
		if errors.Is(err, cryptoutils.ErrSealedDataCorrupt) {
			return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
		}
		return nil, err
	}
	defer clear(plaintext)

	export, err := sessionkey.UnmarshalSensitive(plaintext)
	if err != nil {
		return nil, err
	}
	if interfaces.NewSessionID(export.Address, export.PackageID) != id {
		export.Release()
		return nil, fmt.Errorf("%w: stored session does not match id %s", sessionkey.ErrInvalidConfiguration, id)
	}
	return export, nil
}

// Load restores the session stored under id. Options are passed to sessionkey.Import.
func (s *SessionStore) Load(ctx context.Context, id interfaces.SessionID, passphrase []byte, opts ...sessionkey.Option) (*sessionkey.SessionKey, error) {
	export, err := s.LoadExport(ctx, id, passphrase)
	if err != nil {
		return nil, err
	}
	defer export.Release()

	sk, err := sessionkey.Import(export, opts...)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Loaded session",
		slog.String("session_id", string(id)),
		slog.Bool("expired", sk.IsExpired()))
	return sk, nil
}

// Delete removes the stored session.
func (s *SessionStore) Delete(ctx context.Context, id interfaces.SessionID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return s.backend.Delete(ctx, id)
}
