package remote

import "errors"

// Sentinel errors forming the client-facing failure taxonomy. Transport
// implementations map backend responses onto these values; coordinators
// match them with errors.Is.
var (
	// ErrUnavailable marks transient failures: service unreachable, timed
	// out, or rate limited. Callers queue the operation for retry.
	ErrUnavailable = errors.New("remote service unavailable")

	// ErrZoneNotFound is benign on reads: a brand-new zone has no data yet.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrZoneExists reports an idempotent-create collision; the zone
	// manager treats it as success.
	ErrZoneExists = errors.New("zone already exists")

	// ErrRecordNotFound is benign on delete: the record was local-only or
	// already deleted remotely.
	ErrRecordNotFound = errors.New("record not found")

	// ErrShareNotFound reports that no share exists for the zone.
	ErrShareNotFound = errors.New("share not found")

	// ErrChangeTokenExpired reports that the supplied change token is no
	// longer valid; the caller must discard it and re-pull from scratch.
	ErrChangeTokenExpired = errors.New("change token expired")

	// ErrUnauthorized marks account-state failures (signed out, restricted).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvitationInvalid reports that an invitation token was rejected.
	ErrInvitationInvalid = errors.New("invitation invalid")
)
