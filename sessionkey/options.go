package sessionkey

import (
	"log/slog"
	"time"

	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/ruteri/seal-session/interfaces"
)

// EphemeralKeyGenerator produces a fresh ephemeral keypair for one request.
type EphemeralKeyGenerator func() (*cryptoutils.EphemeralKeypair, error)

type options struct {
	signer       interfaces.Signer
	log          *slog.Logger
	now          func() time.Time
	generateKeys EphemeralKeyGenerator
}

// Option configures a SessionKey.
type Option func(*options)

// WithSigner supplies a signer used to obtain the attestation signature lazily.
func WithSigner(signer interfaces.Signer) Option {
	return func(o *options) {
		o.signer = signer
	}
}

// WithLogger sets the logger. Secrets are never logged.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClock overrides the time source used for creation time and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithEphemeralKeyGenerator overrides the per-request key generator.
func WithEphemeralKeyGenerator(gen EphemeralKeyGenerator) Option {
	return func(o *options) {
		o.generateKeys = gen
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		log:          slog.New(slog.DiscardHandler),
		now:          time.Now,
		generateKeys: cryptoutils.GenerateEphemeralKeypair,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
