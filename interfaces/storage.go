package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SessionID names a stored session export. It is derived from the session's
// identity and scope so that re-exporting a session for the same pair overwrites it.
type SessionID string

// NewSessionID derives the storage identifier for an (identity, scope) pair.
func NewSessionID(identity, scope Address) SessionID {
	return SessionID(fmt.Sprintf("%x-%x", identity[:], scope[:]))
}

// Validate checks that the identifier has the derived "<40 hex>-<40 hex>" shape.
func (id SessionID) Validate() error {
	parts := strings.Split(string(id), "-")
	if len(parts) != 2 {
		return fmt.Errorf("invalid session id %q", string(id))
	}
	for _, p := range parts {
		if _, err := NewAddressFromHex(p); err != nil {
			return fmt.Errorf("invalid session id %q: %w", string(id), err)
		}
	}
	return nil
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrContentNotFound is returned when no export is stored under the requested id.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend stores opaque, already-sealed session exports by id.
type StorageBackend interface {
	// Fetch retrieves data by session id.
	Fetch(ctx context.Context, id SessionID) ([]byte, error)

	// Store saves data under id, replacing any previous value.
	Store(ctx context.Context, id SessionID, data []byte) error

	// Delete removes data stored under id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id SessionID) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}
