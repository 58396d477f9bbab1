package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/sessionkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	url       string
	extractor *MasterKeyExtractor
	metrics   *Metrics
	client    *Client
}

func setupTestServer(t *testing.T, cfg ServiceConfig) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	masterKey, err := GenerateMasterKey()
	require.NoError(t, err)
	extractor, err := NewMasterKeyExtractor(masterKey)
	require.NoError(t, err)

	metrics, err := NewMetrics("test", prometheus.NewRegistry())
	require.NoError(t, err)

	if cfg.Policy == nil {
		cfg.Policy = &StaticPolicy{}
	}
	cfg.Extractor = extractor
	cfg.Metrics = metrics
	cfg.Log = logger

	service, err := NewService(cfg)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(service, logger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		url:       srv.URL,
		extractor: extractor,
		metrics:   metrics,
		client:    NewClient(srv.URL, srv.Client(), logger),
	}
}

func newRequest(t *testing.T, sk *sessionkey.SessionKey, cert *interfaces.Certificate, calls ...Call) (*sessionkey.RequestParams, *interfaces.FetchKeyRequest) {
	t.Helper()
	payload, err := BuildPayload(calls...)
	require.NoError(t, err)
	params, err := sk.CreateRequestParams(payload)
	require.NoError(t, err)
	t.Cleanup(params.Release)
	return params, params.FetchKeyRequest(cert)
}

func TestFetchKey_EndToEnd(t *testing.T) {
	ts := setupTestServer(t, ServiceConfig{})
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 15)

	params, req := newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)), SealApproveCall(pkg, keyIDWith(2)))

	resp, err := ts.client.FetchKeys(context.Background(), req, "req-1")
	require.NoError(t, err)
	require.Len(t, resp.DecryptionKeys, 2)

	mpk, err := ts.client.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ts.extractor.PublicKey(), mpk)

	keys, err := DecryptKeys(params.Ephemeral, resp, mpk)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	for _, b := range []byte{1, 2} {
		id := keyIDWith(b)
		full := FullID(pkg, id[:])
		expected, err := ts.extractor.Extract(full)
		require.NoError(t, err)
		assert.Equal(t, expected, keys[fmt.Sprintf("%x", full)])
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.requests))
}

func TestFetchKey_DecryptWithWrongEphemeralFailsVerification(t *testing.T) {
	ts := setupTestServer(t, ServiceConfig{})
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 15)

	_, req := newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)))
	resp, err := ts.client.FetchKeys(context.Background(), req, "")
	require.NoError(t, err)

	other, _ := newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)))
	_, err = DecryptKeys(other.Ephemeral, resp, ts.extractor.PublicKey())
	assert.Error(t, err)
}

func TestFetchKey_RequestID(t *testing.T) {
	ts := setupTestServer(t, ServiceConfig{})

	httpResp, err := http.Post(ts.url+"/v1/fetch_key", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	assert.NotEmpty(t, httpResp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodPost, ts.url+"/v1/fetch_key", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	httpResp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp2.Body.Close()
	assert.Equal(t, "abc-123", httpResp2.Header.Get(RequestIDHeader))

	var body errorResponse
	require.NoError(t, json.NewDecoder(httpResp2.Body).Decode(&body))
	assert.Equal(t, "abc-123", body.RequestID)
	assert.NotEmpty(t, body.Error)
}

func TestFetchKey_Refusals(t *testing.T) {
	pkg := interfaces.Address{0xbb}

	testCases := []struct {
		name     string
		cfg      ServiceConfig
		mutate   func(t *testing.T, sk *sessionkey.SessionKey, req *interfaces.FetchKeyRequest)
		status   int
		sentinel error
	}{
		{
			name:     "tampered request signature",
			mutate:   func(_ *testing.T, _ *sessionkey.SessionKey, req *interfaces.FetchKeyRequest) { req.RequestSignature[0] ^= 0xff },
			status:   http.StatusUnauthorized,
			sentinel: ErrInvalidSignature,
		},
		{
			name:     "tampered certificate",
			mutate:   func(_ *testing.T, _ *sessionkey.SessionKey, req *interfaces.FetchKeyRequest) { req.Certificate.TTLMin = 30 },
			status:   http.StatusUnauthorized,
			sentinel: ErrInvalidCertificate,
		},
		{
			name:     "expired certificate",
			cfg:      ServiceConfig{Now: func() time.Time { return time.Now().Add(time.Hour) }},
			status:   http.StatusForbidden,
			sentinel: ErrCertificateExpired,
		},
		{
			name:     "policy denied",
			cfg:      ServiceConfig{Policy: &StaticPolicy{AllowedUsers: map[interfaces.Address]bool{{0x01}: true}}},
			status:   http.StatusForbidden,
			sentinel: ErrPolicyDenied,
		},
		{
			name:     "malformed bundle",
			mutate:   func(_ *testing.T, _ *sessionkey.SessionKey, req *interfaces.FetchKeyRequest) { req.PTB = "%%%" },
			status:   http.StatusBadRequest,
			sentinel: ErrInvalidBundle,
		},
		{
			name: "mismatched ephemeral keys",
			mutate: func(t *testing.T, sk *sessionkey.SessionKey, req *interfaces.FetchKeyRequest) {
				payload, err := BuildPayload(SealApproveCall(pkg, keyIDWith(9)))
				require.NoError(t, err)
				other, err := sk.CreateRequestParams(payload)
				require.NoError(t, err)
				req.EncVerificationKey = other.Ephemeral.VerificationKey
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t, tc.cfg)
			sk, cert := newCertifiedSession(t, pkg, 10)
			_, req := newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)))
			if tc.mutate != nil {
				tc.mutate(t, sk, req)
			}

			_, err := ts.client.FetchKeys(context.Background(), req, "")
			require.Error(t, err)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tc.status, reqErr.StatusCode)
			assert.Equal(t, tc.status, StatusCode(err))

			if tc.sentinel != nil {
				assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.errors.WithLabelValues(errorLabel(tc.sentinel))))
			}
		})
	}
}

func TestFetchKey_RateLimited(t *testing.T) {
	ts := setupTestServer(t, ServiceConfig{Limiter: NewUserLimiter(0.001, 1, time.Minute)})
	pkg := interfaces.Address{0xbb}
	sk, cert := newCertifiedSession(t, pkg, 10)

	_, req := newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)))
	_, err := ts.client.FetchKeys(context.Background(), req, "")
	require.NoError(t, err)

	_, req = newRequest(t, sk, cert, SealApproveCall(pkg, keyIDWith(1)))
	_, err = ts.client.FetchKeys(context.Background(), req, "")
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))

	// Another user is unaffected.
	sk2, cert2 := newCertifiedSession(t, pkg, 10)
	_, req = newRequest(t, sk2, cert2, SealApproveCall(pkg, keyIDWith(1)))
	_, err = ts.client.FetchKeys(context.Background(), req, "")
	assert.NoError(t, err)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
	assert.Equal(t, http.StatusForbidden, StatusCode(fmt.Errorf("wrapped: %w", ErrCertificateExpired)))
	assert.Equal(t, http.StatusTeapot, StatusCode(&RequestError{StatusCode: http.StatusTeapot, Err: ErrInvalidBundle}))
}
