package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/seal-session/interfaces"
)

// MultiStorageBackend implements interfaces.StorageBackend using multiple backends with fallback.
// Writes and deletes go to every available backend; reads return the first hit.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback.
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch returns the export from the first available backend holding it.
// ErrContentNotFound is returned only when every reachable backend reports it missing.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.SessionID) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		data, err := backend.Fetch(ctx, id)
		if err == nil {
			m.log.Debug("Fetched session",
				slog.String("backend_name", backend.Name()),
				slog.String("session_id", string(id)),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("session_id", string(id)),
			"err", err)
	}

	if len(errs) > 0 && notFound == len(errs) {
		return nil, interfaces.ErrContentNotFound
	}
	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}

	m.log.Error("All backends failed to fetch session",
		slog.String("session_id", string(id)),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %w", id, errors.Join(errs...))
}

// Store saves data to all available backends. It succeeds if at least one backend accepted it.
func (m *MultiStorageBackend) Store(ctx context.Context, id interfaces.SessionID, data []byte) error {
	start := time.Now()
	stored := 0
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := backend.Store(ctx, id, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		m.log.Error("All backends failed to store session",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return interfaces.ErrBackendUnavailable
		}
		return fmt.Errorf("all backends failed to store session: %w", errors.Join(errs...))
	}

	m.log.Debug("Stored session",
		slog.String("session_id", string(id)),
		slog.Int("backends", stored),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Delete removes id from every available backend. All failures are reported.
func (m *MultiStorageBackend) Delete(ctx context.Context, id interfaces.SessionID) error {
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}
		if err := backend.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Available checks if any backend is available.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI from all backends.
func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
