// Package syncer coordinates the flow of journal records between the local
// partitions and the remote service: pushes on save/delete, range reads
// across visible zones, change-token incremental pulls, and one-time
// migration of local-only data.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dlukins/caresync/internal/client/events"
	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/client/retry"
	"github.com/dlukins/caresync/internal/client/store"
	"github.com/dlukins/caresync/internal/client/zones"
	"github.com/dlukins/caresync/internal/logging"
)

// ErrSyncInProgress is returned when a sync pass is requested while another
// is running. Requests are rejected, never queued.
var ErrSyncInProgress = errors.New("synchronization already in progress")

// saveBatchSize caps how many records travel in one remote save call.
const saveBatchSize = 400

// Options wires a Coordinator. Owner is the account name whose private
// zone owner-scope operations address.
type Options struct {
	Owner     string
	Service   remote.Service
	Store     *store.Manager
	Zones     *zones.Manager
	Retry     *retry.Coordinator
	Hooks     events.Hooks
	Logger    logging.Logger
	PhotosDir string
}

type Coordinator struct {
	owner     string
	svc       remote.Service
	store     *store.Manager
	zones     *zones.Manager
	retry     *retry.Coordinator
	hooks     events.Hooks
	log       logging.Logger
	photosDir string

	// guards the syncing flag only; network calls run with mu released
	mu      sync.Mutex
	syncing bool
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.NewJSONLogger()
	}
	return &Coordinator{
		owner:     opts.Owner,
		svc:       opts.Service,
		store:     opts.Store,
		zones:     opts.Zones,
		retry:     opts.Retry,
		hooks:     opts.Hooks,
		log:       opts.Logger,
		photosDir: opts.PhotosDir,
	}
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing {
		return ErrSyncInProgress
	}
	c.syncing = true
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.syncing = false
	c.mu.Unlock()
}

// remoteReady reports whether remote calls may run. Without a wired
// service, or once the store has degraded to local-only, every operation
// falls back to pure local persistence.
func (c *Coordinator) remoteReady() bool {
	return c.svc != nil && !c.store.LocalOnly()
}

// writeZone resolves the single zone a scope's writes address.
func (c *Coordinator) writeZone(ctx context.Context, scope models.Scope) (models.ZoneID, error) {
	if scope == models.ScopeParticipant {
		z := c.store.ParticipantZone(ctx)
		if z == nil {
			return models.ZoneID{}, errors.New("no participant zone configured")
		}
		return *z, nil
	}
	return zones.OwnerZone(c.owner), nil
}

// readZones resolves every zone a scope's reads cover: participant scope
// reads only the participant zone, owner scope unions the private zone with
// every zone shared in.
func (c *Coordinator) readZones(ctx context.Context, scope models.Scope) ([]models.ZoneID, error) {
	if scope == models.ScopeParticipant {
		z := c.store.ParticipantZone(ctx)
		if z == nil {
			return nil, errors.New("no participant zone configured")
		}
		return []models.ZoneID{*z}, nil
	}

	out := []models.ZoneID{zones.OwnerZone(c.owner)}
	shared, err := c.zones.AllSharedZones(ctx)
	if err != nil {
		// shared zones are additive; a listing failure must not hide
		// the private zone
		c.log.Warn(ctx, "could not list shared zones", "error", err)
		return out, nil
	}
	return append(out, shared...), nil
}

// Save persists a record locally and pushes it to the remote zone. A local
// failure rolls back and surfaces; a remote failure is queued for retry and
// does not undo the local write.
func (c *Coordinator) Save(ctx context.Context, scope models.Scope, rec *models.Record) error {
	return c.SaveBatch(ctx, scope, []*models.Record{rec})
}

// SaveBatch saves records locally, then pushes them remotely in chunks.
// Remote failures are per-record: failed ones are queued for retry while
// the rest go through.
func (c *Coordinator) SaveBatch(ctx context.Context, scope models.Scope, recs []*models.Record) error {
	for _, rec := range recs {
		if err := c.store.SaveRecord(ctx, scope, rec); err != nil {
			return fmt.Errorf("save record %s locally: %w", rec.ID, err)
		}
	}
	c.hooks.EmitDataChanged()

	if !c.remoteReady() {
		return nil
	}

	zone, err := c.writeZone(ctx, scope)
	if err != nil {
		return err
	}

	remotes := make([]models.RemoteRecord, 0, len(recs))
	for _, rec := range recs {
		remotes = append(remotes, models.ToRemote(rec, zone))
	}
	c.pushRemote(ctx, zone, remotes)
	return nil
}

// pushRemote sends records in chunks and queues whatever fails.
func (c *Coordinator) pushRemote(ctx context.Context, zone models.ZoneID, remotes []models.RemoteRecord) {
	for start := 0; start < len(remotes); start += saveBatchSize {
		chunk := remotes[start:min(start+saveBatchSize, len(remotes))]

		failed, err := c.svc.SaveRecords(ctx, zone, chunk)
		if err != nil {
			c.log.Warn(ctx, "remote save failed, queueing for retry",
				"zone", zone.String(), "count", len(chunk), "error", err)
			for _, rr := range chunk {
				c.retry.EnqueueSave(zone, rr)
			}
			continue
		}
		for _, f := range failed {
			c.log.Warn(ctx, "record rejected by remote, queueing for retry",
				"record", f.ID, "error", f.Err)
			for _, rr := range chunk {
				if rr.ID == f.ID {
					c.retry.EnqueueSave(zone, rr)
				}
			}
		}
	}
}

// Delete removes the record locally and remotely. A record unknown to the
// remote is already deleted, which is success.
func (c *Coordinator) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := c.store.DeleteRecord(ctx, scope, id); err != nil {
		return fmt.Errorf("delete record %s locally: %w", id, err)
	}
	c.hooks.EmitDataChanged()

	if !c.remoteReady() {
		return nil
	}

	zone, err := c.writeZone(ctx, scope)
	if err != nil {
		return err
	}

	err = c.svc.DeleteRecord(ctx, zone, models.RemoteName(id))
	if err != nil && !errors.Is(err, remote.ErrRecordNotFound) {
		c.log.Warn(ctx, "remote delete failed, queueing for retry",
			"record", id, "error", err)
		c.retry.EnqueueDelete(zone, id)
	}
	return nil
}

// Fetch returns records with ordering timestamp in [from, to) across every
// zone the scope covers, ascending by Time. Duplicated IDs keep the most
// recently modified copy. Unknown zones contribute an empty result.
func (c *Coordinator) Fetch(ctx context.Context, scope models.Scope, from, to time.Time) ([]models.Record, error) {
	if !c.remoteReady() {
		part, err := c.store.PartitionFor(scope)
		if err != nil {
			return nil, err
		}
		return part.Records.ListRange(ctx, from, to)
	}

	zoneIDs, err := c.readZones(ctx, scope)
	if err != nil {
		return nil, err
	}

	byID := map[string]models.Record{}
	for _, zone := range zoneIDs {
		rrs, err := c.svc.QueryRecords(ctx, zone, from, to)
		if errors.Is(err, remote.ErrZoneNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query zone %s: %w", zone.String(), err)
		}
		for _, rr := range rrs {
			rec, ok := models.FromRemote(rr)
			if !ok {
				c.log.Warn(ctx, "skipping malformed remote record", "name", rr.Name)
				continue
			}
			if prev, seen := byID[rec.ID]; !seen || rec.ModifiedAt.After(prev.ModifiedAt) {
				byID[rec.ID] = *rec
			}
		}
	}

	out := make([]models.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
