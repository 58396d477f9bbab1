package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/seal-session/interfaces"
)

const sealedSuffix = ".sealed"

// FileBackend implements a storage backend using the local file system.
// Exports are kept under <baseDir>/sessions with owner-only permissions.
type FileBackend struct {
	baseDir     string
	sessionsDir string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		sessionsDir: sessionsDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the export stored under id.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.SessionID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	filePath := b.getFilePath(id)

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched session from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data under id. The write goes to a temporary file first and is
// renamed into place, so readers never observe a partial export.
func (b *FileBackend) Store(ctx context.Context, id interfaces.SessionID, data []byte) error {
	if err := id.Validate(); err != nil {
		return err
	}
	filePath := b.getFilePath(id)

	tmp, err := os.CreateTemp(b.sessionsDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored session in file",
		slog.String("path", filePath),
		slog.String("sessionID", string(id)))

	return nil
}

// Delete removes the export stored under id.
func (b *FileBackend) Delete(ctx context.Context, id interfaces.SessionID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := os.Remove(b.getFilePath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Available checks if the file backend is accessible by verifying the sessions directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.sessionsDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) getFilePath(id interfaces.SessionID) string {
	return filepath.Join(b.sessionsDir, string(id)+sealedSuffix)
}
