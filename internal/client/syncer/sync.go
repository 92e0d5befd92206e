package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/client/store"
	"github.com/dlukins/caresync/internal/common"
)

// IncrementalSync pulls the delta since the persisted change token for
// every zone the scope covers and applies it to the scope's partition.
// Only one sync pass runs at a time; a concurrent request gets
// ErrSyncInProgress. The new token is persisted before the guard releases,
// so the next pass never reuses a consumed token.
func (c *Coordinator) IncrementalSync(ctx context.Context, scope models.Scope) error {
	if !c.remoteReady() {
		return nil
	}
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	part, err := c.store.PartitionFor(scope)
	if err != nil {
		return err
	}
	zoneIDs, err := c.readZones(ctx, scope)
	if err != nil {
		return err
	}

	changed := false
	for _, zone := range zoneIDs {
		gotChanges, err := c.syncZone(ctx, part, zone)
		if err != nil {
			return fmt.Errorf("sync zone %s: %w", zone.String(), err)
		}
		changed = changed || gotChanges
	}

	if err := part.SetLastSyncAt(ctx, time.Now().UTC()); err != nil {
		c.log.Warn(ctx, "could not record sync time", "error", err)
	}
	if changed {
		c.hooks.EmitDataChanged()
	}
	return nil
}

// syncZone applies one zone's delta and reports whether anything changed.
func (c *Coordinator) syncZone(ctx context.Context, part *store.Partition, zone models.ZoneID) (bool, error) {
	token := part.ChangeToken(ctx, zone)

	cs, err := c.svc.Changes(ctx, zone, token)
	if errors.Is(err, remote.ErrChangeTokenExpired) {
		// the server compacted past our token; discard it and pull
		// everything from scratch
		c.log.Warn(ctx, "change token expired, falling back to full sync",
			"zone", zone.String())
		if err := part.ClearChangeToken(ctx, zone); err != nil {
			return false, err
		}
		cs, err = c.svc.Changes(ctx, zone, "")
	}
	if errors.Is(err, remote.ErrZoneNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	changed := false
	for _, rr := range cs.Changed {
		rec, ok := models.FromRemote(rr)
		if !ok {
			c.log.Warn(ctx, "skipping malformed remote record", "name", rr.Name)
			continue
		}
		if err := part.Records.Upsert(ctx, rec); err != nil {
			return changed, fmt.Errorf("apply record %s: %w", rec.ID, err)
		}
		changed = true
	}
	for _, id := range cs.DeletedIDs {
		err := part.Records.DeleteByID(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("apply deletion %s: %w", id, err)
		}
		changed = true
	}

	if err := part.SetChangeToken(ctx, zone, cs.Token); err != nil {
		return changed, fmt.Errorf("persist change token: %w", err)
	}
	return changed, nil
}

// AdoptSharedZone checks whether another owner has granted this account
// access and persists the discovered zone as the participant zone, so the
// grant takes effect without an explicit in-app accept step (the accept
// happened on another device or out of band). A device that has never
// chosen a scope becomes a participant; an explicit prior choice is kept,
// only the zone identity is recorded.
func (c *Coordinator) AdoptSharedZone(ctx context.Context) error {
	if !c.remoteReady() {
		return nil
	}
	if c.store.ParticipantZone(ctx) != nil {
		return nil
	}

	zone, err := c.zones.DiscoverParticipantZone(ctx)
	if err != nil {
		return err
	}
	if zone == nil || !c.store.HasParticipantPartition() {
		return nil
	}

	scope := models.ScopeParticipant
	if c.store.ScopePersisted(ctx) {
		scope = c.store.CurrentScope(ctx)
	}
	if err := c.store.SetScope(ctx, scope, zone); err != nil {
		return err
	}
	if err := c.zones.EnsureSubscription(ctx, *zone, models.ScopeParticipant); err != nil {
		c.log.Warn(ctx, "could not subscribe to adopted zone",
			"zone", zone.String(), "error", err)
	}
	c.log.Info(ctx, "adopted shared zone", "zone", zone.String(), "scope", string(scope))
	c.hooks.EmitDataChanged()
	return nil
}

// MigrateLocalOnly pushes everything accumulated while the device ran
// without an account into the owner zone. Idempotent: once the completion
// flag is set further calls are no-ops, and the flag is set only when every
// batch lands, so a partial failure is retried in full on the next call
// (remote saves are upserts, replays converge).
func (c *Coordinator) MigrateLocalOnly(ctx context.Context) error {
	if !c.remoteReady() {
		return nil
	}
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	part, err := c.store.PartitionFor(models.ScopeOwner)
	if err != nil {
		return err
	}
	if part.MigrationDone(ctx) {
		return nil
	}

	recs, err := part.Records.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list local records: %w", err)
	}

	zone, err := c.writeZone(ctx, models.ScopeOwner)
	if err != nil {
		return err
	}

	remotes := make([]models.RemoteRecord, 0, len(recs))
	for i := range recs {
		remotes = append(remotes, models.ToRemote(&recs[i], zone))
	}

	for start := 0; start < len(remotes); start += saveBatchSize {
		chunk := remotes[start:min(start+saveBatchSize, len(remotes))]
		failed, err := c.svc.SaveRecords(ctx, zone, chunk)
		if err != nil {
			return fmt.Errorf("migrate batch: %w", err)
		}
		if len(failed) > 0 {
			return fmt.Errorf("migrate batch: %d records rejected, first: %w",
				len(failed), failed[0].Err)
		}
	}

	// photos captured offline still need pushing
	for i := range recs {
		if recs[i].HasPhoto && !recs[i].PhotoSynced {
			c.retry.EnqueuePhotoUpload(zone, recs[i].ID)
		}
	}

	if err := part.SetMigrationDone(ctx); err != nil {
		return fmt.Errorf("record migration completion: %w", err)
	}
	c.log.Info(ctx, "local-only data migrated", "records", len(recs))
	return nil
}
