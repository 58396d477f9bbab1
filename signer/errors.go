package signer

import "errors"

var (
	// ErrSigningRejected is returned when the key holder declines to sign.
	ErrSigningRejected = errors.New("signing rejected by the key holder")

	// ErrSigningFailed is returned when a signature could not be produced.
	ErrSigningFailed = errors.New("signing failed")
)
