// Package common defines shared constants and sentinel errors used across
// client and server layers of CareSync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Sync protocol errors.
	ErrChangeTokenExpired = errors.New("change token expired")
	ErrZoneNotFound       = errors.New("zone not found")
	ErrZoneExists         = errors.New("zone already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
