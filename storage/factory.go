package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/seal-session/interfaces"
)

// StorageBackendFactory creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StorageBackendFactory{log: logger}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(locationURI string) (interfaces.StorageBackend, error) {
	loc, err := interfaces.NewStorageBackendLocation(locationURI)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "s3":
		return sf.createS3Backend(loc)
	case "vault":
		return sf.createVaultBackend(loc)
	case "file":
		return sf.createFileBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// Invalid URIs are logged and skipped. Returns an error if no valid backends could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []string) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))

	for _, uri := range locationURIs {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing S3 bucket name", interfaces.ErrInvalidLocationURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://[TOKEN@]host:port/mount/path?insecure=true&timeout=10s
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host", interfaces.ErrInvalidLocationURI)
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" {
		return nil, fmt.Errorf("%w: missing Vault mount path", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}

	opts := VaultOptions{Token: loc.Auth}
	if t := loc.GetParam("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout: %v", interfaces.ErrInvalidLocationURI, err)
		}
		opts.Timeout = d
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, loc.Host), mount, dataPath, opts, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	sf.log.Debug("Creating file backend", slog.String("path", path))
	return NewFileBackend(path, sf.log)
}
