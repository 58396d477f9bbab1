package keyserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Policy    Policy
	Extractor KeyExtractor

	// Limiter is optional; nil disables per-user rate limiting.
	Limiter *UserLimiter

	// Metrics is optional.
	Metrics *Metrics

	Log *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service answers fetch-key requests: it authenticates the session, evaluates
// the policy and returns the approved keys encrypted to the request's ephemeral key.
type Service struct {
	policy    Policy
	extractor KeyExtractor
	limiter   *UserLimiter
	metrics   *Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("key extractor is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		m, err := NewMetrics("", nil)
		if err != nil {
			return nil, err
		}
		cfg.Metrics = m
	}

	return &Service{
		policy:    cfg.Policy,
		extractor: cfg.Extractor,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
		now:       cfg.Now,
	}, nil
}

// PublicKey returns the compressed G2 master public key clients verify derived keys against.
func (s *Service) PublicKey() []byte {
	return s.extractor.PublicKey()
}

// FetchKeys checks req and returns the approved keys. Errors wrap the package
// sentinels; StatusCode maps them to HTTP statuses.
func (s *Service) FetchKeys(ctx context.Context, req *interfaces.FetchKeyRequest, requestID string) (*interfaces.FetchKeyResponse, error) {
	start := s.now()
	s.metrics.requests.Inc()

	resp, err := s.fetchKeys(ctx, req, requestID)
	if err != nil {
		s.metrics.observeError(err)
		s.log.Warn("Fetch key request refused", "requestID", requestID, "err", err)
		return nil, err
	}

	s.metrics.keysPerRequest.Observe(float64(len(resp.DecryptionKeys)))
	s.metrics.requestDuration.Observe(s.now().Sub(start).Seconds())
	s.log.Info("Fetch key request served", "requestID", requestID, "user", req.Certificate.User.String(), "keys", len(resp.DecryptionKeys))
	return resp, nil
}

func (s *Service) fetchKeys(ctx context.Context, req *interfaces.FetchKeyRequest, requestID string) (*interfaces.FetchKeyResponse, error) {
	ptb, err := base64.StdEncoding.DecodeString(req.PTB)
	if err != nil {
		return nil, fmt.Errorf("%w: ptb is not base64: %v", ErrInvalidBundle, err)
	}
	bundle, err := ParseBundle(ptb)
	if err != nil {
		return nil, err
	}

	if err := cryptoutils.VerifyEphemeralKeys(req.EncKey, req.EncVerificationKey); err != nil {
		return nil, err
	}

	if err := VerifyRequestSignature(req, ptb); err != nil {
		return nil, err
	}
	s.log.Debug("Request signature verified", "requestID", requestID)

	pkg := bundle.Package()
	if err := CheckCertificate(&req.Certificate, pkg, s.now()); err != nil {
		return nil, err
	}
	s.log.Debug("Certificate verified", "requestID", requestID, "user", req.Certificate.User.String(), "package", pkg.String())

	// Limited per authenticated user, so forged requests cannot drain another user's budget.
	if !s.limiter.Allow(req.Certificate.User, s.now()) {
		return nil, fmt.Errorf("%w: user %s", ErrRateLimited, req.Certificate.User)
	}

	ids, err := s.policy.ApprovedKeyIDs(ctx, req.Certificate.User, bundle)
	if err != nil {
		return nil, err
	}

	keys := make([]interfaces.DecryptionKey, 0, len(ids))
	for _, id := range ids {
		derived, err := s.extractor.Extract(id)
		if err != nil {
			return nil, fmt.Errorf("could not derive key: %w", err)
		}
		ct, err := cryptoutils.EncryptElGamal(req.EncKey, derived)
		if err != nil {
			return nil, fmt.Errorf("could not encrypt key: %w", err)
		}
		keys = append(keys, interfaces.DecryptionKey{ID: id, EncryptedKey: ct})
	}

	return &interfaces.FetchKeyResponse{DecryptionKeys: keys}, nil
}
