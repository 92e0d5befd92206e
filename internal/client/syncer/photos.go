package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/filex"
)

// AttachPhoto stores a photo for an existing record in the local cache and
// pushes it to the remote. Assets are keyed by the owning record's ID. A
// failed push is queued for retry; the local cache and flags stay correct
// either way.
func (c *Coordinator) AttachPhoto(ctx context.Context, scope models.Scope, recordID string, payload []byte) error {
	part, err := c.store.PartitionFor(scope)
	if err != nil {
		return err
	}
	rec, err := part.Records.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("attach photo to %s: %w", recordID, err)
	}

	if err := filex.WritePhoto(c.photosDir, recordID, payload); err != nil {
		return fmt.Errorf("cache photo for %s: %w", recordID, err)
	}
	rec.HasPhoto = true
	rec.PhotoSynced = false
	if err := part.Records.Upsert(ctx, rec); err != nil {
		return err
	}

	// local-only: the cache and flags are enough, migration pushes the
	// asset once an account appears
	if !c.remoteReady() {
		return nil
	}

	zone, err := c.writeZone(ctx, scope)
	if err != nil {
		return err
	}

	// asset before metadata, so the remote has-photo flag never points
	// at an asset that was never uploaded
	if err := c.svc.UploadPhoto(ctx, zone, recordID, payload); err != nil {
		c.log.Warn(ctx, "photo upload failed, queueing for retry",
			"record", recordID, "error", err)
		c.retry.EnqueuePhotoUpload(zone, recordID)
	} else if err := part.Records.SetPhotoSynced(ctx, recordID, true); err != nil {
		return err
	}

	c.pushRemote(ctx, zone, []models.RemoteRecord{models.ToRemote(rec, zone)})
	return nil
}

// PhotoPath returns the local cache path for a record's photo.
func (c *Coordinator) PhotoPath(recordID string) string {
	return filex.PhotoPath(c.photosDir, recordID)
}

// LoadPhoto reads a record's photo from the local cache.
func (c *Coordinator) LoadPhoto(recordID string) ([]byte, error) {
	return filex.ReadPhoto(c.photosDir, recordID)
}

// DownloadMissingPhotos fetches photo assets the remote has flagged but the
// local cache lacks. Records are handled independently: one failed download
// is logged and skipped, it never blocks the rest, and the next pass picks
// it up again.
func (c *Coordinator) DownloadMissingPhotos(ctx context.Context, scope models.Scope) error {
	if !c.remoteReady() {
		return nil
	}
	part, err := c.store.PartitionFor(scope)
	if err != nil {
		return err
	}
	recs, err := part.Records.ListAll(ctx)
	if err != nil {
		return err
	}

	zoneIDs, err := c.readZones(ctx, scope)
	if err != nil {
		return err
	}

	for i := range recs {
		rec := &recs[i]
		if !rec.HasPhoto || filex.PhotoExists(c.photosDir, rec.ID) {
			continue
		}
		payload, err := c.downloadPhoto(ctx, zoneIDs, rec.ID)
		if err != nil {
			c.log.Warn(ctx, "photo download failed, will retry next pass",
				"record", rec.ID, "error", err)
			continue
		}
		if err := filex.WritePhoto(c.photosDir, rec.ID, payload); err != nil {
			c.log.Warn(ctx, "could not cache photo", "record", rec.ID, "error", err)
		}
	}
	return nil
}

// downloadPhoto tries every zone the scope reads until one holds the
// asset. Asset keys embed the origin zone, so a record pulled in from a
// zone shared by another owner downloads from that zone, not from the
// scope's write zone.
func (c *Coordinator) downloadPhoto(ctx context.Context, zoneIDs []models.ZoneID, recordID string) ([]byte, error) {
	var lastErr error = remote.ErrRecordNotFound
	for _, zone := range zoneIDs {
		payload, err := c.svc.DownloadPhoto(ctx, zone, recordID)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if errors.Is(err, remote.ErrRecordNotFound) || errors.Is(err, remote.ErrZoneNotFound) {
			continue
		}
		break
	}
	return nil, lastErr
}
