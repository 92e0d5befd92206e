// Package remote abstracts the synchronization service the client talks to.
// The HTTP implementation speaks to caresyncd; the in-memory implementation
// backs tests and multi-device scenarios without a network.
package remote

import (
	"context"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
)

// SaveResult reports the outcome of one record within a batch save. Batch
// failures are per-item, never a single atomic failure.
type SaveResult struct {
	ID  string
	Err error
}

// Service is the remote synchronization API. All methods are safe for
// concurrent use and honor context cancellation. Implementations map their
// backend's failures onto the sentinel errors in this package.
type Service interface {
	// Ping checks service liveness.
	Ping(ctx context.Context) error

	// CreateZone creates a zone. Creating a zone that already exists
	// returns ErrZoneExists; the zone manager treats that as success.
	CreateZone(ctx context.Context, zone models.ZoneID) error

	// ZoneExists reports whether the zone is visible to this device.
	ZoneExists(ctx context.Context, zone models.ZoneID) (bool, error)

	// ListSharedZones returns every zone shared with this device's account
	// by other owners.
	ListSharedZones(ctx context.Context) ([]models.ZoneID, error)

	// SaveSubscription upserts a change-notification subscription.
	SaveSubscription(ctx context.Context, sub models.Subscription) error

	// GetSubscription fetches a subscription by its deterministic ID.
	// Returns ErrRecordNotFound when absent.
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)

	// SaveRecords upserts records into a zone using changed-keys semantics:
	// only the keys present in each record's field map are written, so a
	// concurrent writer's unrelated fields are not clobbered. The result
	// slice has one entry per failed record; an empty slice means full
	// success.
	SaveRecords(ctx context.Context, zone models.ZoneID, records []models.RemoteRecord) ([]SaveResult, error)

	// DeleteRecord deletes by addressing key. Deleting an unknown key
	// returns ErrRecordNotFound; callers treat that as success.
	DeleteRecord(ctx context.Context, zone models.ZoneID, name string) error

	// QueryRecords returns the zone's records with ordering timestamp in
	// [from, to), ascending. An unknown zone yields ErrZoneNotFound.
	QueryRecords(ctx context.Context, zone models.ZoneID, from, to time.Time) ([]models.RemoteRecord, error)

	// Changes returns the delta since the given change token, or everything
	// when token is empty. A stale token yields ErrChangeTokenExpired.
	Changes(ctx context.Context, zone models.ZoneID, token string) (*models.ChangeSet, error)

	// CreateShare creates (or returns the existing) share for a zone.
	CreateShare(ctx context.Context, zone models.ZoneID) (*models.Share, error)

	// FetchShare returns the zone's share, or ErrShareNotFound.
	FetchShare(ctx context.Context, zone models.ZoneID) (*models.Share, error)

	// Participants enumerates accepted and invited participants of a zone.
	Participants(ctx context.Context, zone models.ZoneID) ([]models.Participant, error)

	// RevokeShare stops sharing a zone.
	RevokeShare(ctx context.Context, zone models.ZoneID) error

	// AcceptInvitation redeems an invitation token received out of band and
	// returns the zone it grants access to.
	AcceptInvitation(ctx context.Context, token string) (*models.ZoneID, error)

	// UploadPhoto stores the photo asset for a record. Assets are keyed by
	// the owning record's ID, never by filename.
	UploadPhoto(ctx context.Context, zone models.ZoneID, recordID string, payload []byte) error

	// DownloadPhoto fetches the photo asset for a record, or
	// ErrRecordNotFound when no asset exists.
	DownloadPhoto(ctx context.Context, zone models.ZoneID, recordID string) ([]byte, error)
}
