package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/seal-session/interfaces"
)

// VaultBackend implements a storage backend using the HashiCorp Vault KV v2 engine.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// VaultOptions configures authentication for a VaultBackend.
type VaultOptions struct {
	// Token is used when set. Otherwise the client falls back to VAULT_TOKEN.
	Token string
	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
	Timeout    time.Duration
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: Vault mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "seal-session")
func NewVaultBackend(address, mountPath, dataPath string, opts VaultOptions, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if opts.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*opts.ClientCert},
					MinVersion:   tls.VersionTLS12,
				},
			},
			Timeout: timeout,
		}
	} else {
		config.Timeout = timeout
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Fetch retrieves data from Vault by session id.
func (b *VaultBackend) Fetch(ctx context.Context, id interfaces.SessionID) ([]byte, error) {
	start := time.Now()
	path := b.dataPathFor(id)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Session not found in Vault", slog.String("path", path))
		return nil, interfaces.ErrContentNotFound
	}

	// KV v2 wraps the payload in a "data" map. A soft-deleted entry has nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		b.log.Error("Content key not found in Vault data", slog.String("path", path))
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Fetched session from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return decoded, nil
}

// Store writes data under id as a new KV version.
func (b *VaultBackend) Store(ctx context.Context, id interfaces.SessionID, data []byte) error {
	start := time.Now()
	path := b.dataPathFor(id)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored session in Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Delete removes every version of the entry stored under id.
func (b *VaultBackend) Delete(ctx context.Context, id interfaces.SessionID) error {
	path := fmt.Sprintf("%s/metadata/%s", b.mountPath, b.relativePath(id))
	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks if Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) relativePath(id interfaces.SessionID) string {
	if b.dataPath == "" {
		return string(id)
	}
	return b.dataPath + "/" + string(id)
}

func (b *VaultBackend) dataPathFor(id interfaces.SessionID) string {
	return fmt.Sprintf("%s/data/%s", b.mountPath, b.relativePath(id))
}
