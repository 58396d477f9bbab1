package keyserver

import (
	"errors"
	"net/http"

	"github.com/ruteri/seal-session/cryptoutils"
)

var (
	// ErrInvalidCertificate is returned when a certificate is malformed or its
	// attestation signature does not recover to the certificate user.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrCertificateExpired is returned when the certificate TTL window has elapsed.
	ErrCertificateExpired = errors.New("certificate expired")

	// ErrInvalidSignature is returned when the request signature does not verify
	// under the certified session key.
	ErrInvalidSignature = errors.New("invalid request signature")

	// ErrInvalidBundle is returned when the transaction bundle cannot be parsed.
	ErrInvalidBundle = errors.New("invalid transaction bundle")

	// ErrPolicyDenied is returned when no call in the bundle is approved for the user.
	ErrPolicyDenied = errors.New("access denied by policy")

	// ErrRateLimited is returned when a user exceeds the request rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RequestError pairs an error with the HTTP status it maps to.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode maps a fetch-key error to its HTTP status.
func StatusCode(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCertificateExpired), errors.Is(err, ErrPolicyDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCertificate), errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidBundle), errors.Is(err, cryptoutils.ErrInvalidEphemeralKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorLabel names err for the errors_total metric.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCertificateExpired):
		return "certificate_expired"
	case errors.Is(err, ErrPolicyDenied):
		return "policy_denied"
	case errors.Is(err, ErrInvalidCertificate):
		return "invalid_certificate"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidBundle):
		return "invalid_bundle"
	case errors.Is(err, cryptoutils.ErrInvalidEphemeralKey):
		return "invalid_ephemeral_key"
	default:
		return "internal"
	}
}
