package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

// Client talks to a key server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a client for the key server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// FetchKeys submits req. requestID is sent as X-Request-Id when non-empty.
// Non-200 replies are returned as *RequestError carrying the status code.
func (c *Client) FetchKeys(ctx context.Context, req *interfaces.FetchKeyRequest, requestID string) (*interfaces.FetchKeyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/fetch_key", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		httpReq.Header.Set(RequestIDHeader, requestID)
	}

	var resp interfaces.FetchKeyResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	c.log.Debug("Fetched keys", "server", c.baseURL, "requestID", requestID, "keys", len(resp.DecryptionKeys))
	return &resp, nil
}

// PublicKey fetches the server's master public key.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/public_key", nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	var resp PublicKeyResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.PublicKey, nil
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("could not request key server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("could not read key server response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("key server returned %d: %s", resp.StatusCode, msg)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not parse key server response: %w", err)
	}
	return nil
}

// DecryptKeys opens every key in resp with the request's ephemeral keypair.
// When masterPublicKey is non-nil each key is also checked against its id.
// The result maps hex-encoded full ids to compressed G1 keys.
func DecryptKeys(ephemeral *cryptoutils.EphemeralKeypair, resp *interfaces.FetchKeyResponse, masterPublicKey []byte) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(resp.DecryptionKeys))
	for _, dk := range resp.DecryptionKeys {
		key, err := ephemeral.Decrypt(dk.EncryptedKey)
		if err != nil {
			return nil, fmt.Errorf("could not decrypt key %x: %w", dk.ID, err)
		}
		if masterPublicKey != nil {
			if err := VerifyDerivedKey(masterPublicKey, dk.ID, key); err != nil {
				return nil, err
			}
		}
		keys[fmt.Sprintf("%x", dk.ID)] = key
	}
	return keys, nil
}
