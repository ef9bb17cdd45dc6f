// Package common defines shared sentinel errors and small helpers used across
// ScrollKeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Integrity errors: a MAC or chain hash did not verify.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrResetDisabled is returned when security state reset is requested
	// outside of development mode.
	ErrResetDisabled = errors.New("security state reset is disabled")

	// Attestation token errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
