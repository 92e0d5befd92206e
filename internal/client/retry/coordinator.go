// Package retry keeps in-memory queues of remote operations that failed and
// drains them when the service becomes reachable again. Queues live for the
// process lifetime only; durable state is the local partitions, which remain
// correct whether or not a queued push ever lands.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/logging"
	backoffs "github.com/sethvargo/go-retry"
)

// PhotoLoader reads the locally cached photo bytes for a record, so a
// queued upload can be replayed without holding payloads in memory.
type PhotoLoader func(recordID string) ([]byte, error)

type saveItem struct {
	zone   models.ZoneID
	record models.RemoteRecord
}

type deleteItem struct {
	zone models.ZoneID
	id   string
}

type photoItem struct {
	zone     models.ZoneID
	recordID string
}

// Coordinator owns the pending queues. Safe for concurrent use.
type Coordinator struct {
	svc       remote.Service
	log       logging.Logger
	loadPhoto PhotoLoader

	mu      sync.Mutex
	saves   map[string]saveItem
	deletes map[string]deleteItem
	photos  map[string]photoItem
}

func New(svc remote.Service, loadPhoto PhotoLoader, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NewJSONLogger()
	}
	return &Coordinator{
		svc:       svc,
		log:       log,
		loadPhoto: loadPhoto,
		saves:     map[string]saveItem{},
		deletes:   map[string]deleteItem{},
		photos:    map[string]photoItem{},
	}
}

// EnqueueSave queues a record push. A newer record with the same ID
// replaces the queued one.
func (c *Coordinator) EnqueueSave(zone models.ZoneID, rr models.RemoteRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves[rr.ID] = saveItem{zone: zone, record: rr}
	// a pending delete for the same record is superseded
	delete(c.deletes, rr.ID)
}

// EnqueueDelete queues a record deletion, superseding any pending save.
func (c *Coordinator) EnqueueDelete(zone models.ZoneID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes[id] = deleteItem{zone: zone, id: id}
	delete(c.saves, id)
	delete(c.photos, id)
}

// EnqueuePhotoUpload queues a photo asset push for a record.
func (c *Coordinator) EnqueuePhotoUpload(zone models.ZoneID, recordID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos[recordID] = photoItem{zone: zone, recordID: recordID}
}

// PendingCounts reports queue depths, mostly for tests and logging.
func (c *Coordinator) PendingCounts() (saves, deletes, photos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves), len(c.deletes), len(c.photos)
}

func backoff() backoffs.Backoff {
	return backoffs.WithMaxRetries(3, backoffs.NewExponential(200*time.Millisecond))
}

// RetryPending drains every queue. Items are independent: one record
// failing leaves it queued without blocking the others.
func (c *Coordinator) RetryPending(ctx context.Context) {
	c.mu.Lock()
	saves := make([]saveItem, 0, len(c.saves))
	for _, it := range c.saves {
		saves = append(saves, it)
	}
	deletes := make([]deleteItem, 0, len(c.deletes))
	for _, it := range c.deletes {
		deletes = append(deletes, it)
	}
	photos := make([]photoItem, 0, len(c.photos))
	for _, it := range c.photos {
		photos = append(photos, it)
	}
	c.mu.Unlock()

	for _, it := range saves {
		it := it
		err := backoffs.Do(ctx, backoff(), func(ctx context.Context) error {
			failed, err := c.svc.SaveRecords(ctx, it.zone, []models.RemoteRecord{it.record})
			if err != nil {
				return backoffs.RetryableError(err)
			}
			if len(failed) > 0 {
				return backoffs.RetryableError(failed[0].Err)
			}
			return nil
		})
		if err != nil {
			c.log.Warn(ctx, "queued save still failing", "record", it.record.ID, "error", err)
			continue
		}
		c.mu.Lock()
		delete(c.saves, it.record.ID)
		c.mu.Unlock()
	}

	for _, it := range deletes {
		it := it
		err := backoffs.Do(ctx, backoff(), func(ctx context.Context) error {
			err := c.svc.DeleteRecord(ctx, it.zone, models.RemoteName(it.id))
			if err != nil && !isBenignDelete(err) {
				return backoffs.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			c.log.Warn(ctx, "queued delete still failing", "record", it.id, "error", err)
			continue
		}
		c.mu.Lock()
		delete(c.deletes, it.id)
		c.mu.Unlock()
	}

	for _, it := range photos {
		if c.loadPhoto == nil {
			c.log.Warn(ctx, "no photo loader configured, photo uploads stay queued")
			break
		}
		it := it
		err := backoffs.Do(ctx, backoff(), func(ctx context.Context) error {
			payload, err := c.loadPhoto(it.recordID)
			if err != nil {
				// cache entry gone; nothing left to push
				return nil
			}
			if err := c.svc.UploadPhoto(ctx, it.zone, it.recordID, payload); err != nil {
				return backoffs.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			c.log.Warn(ctx, "queued photo upload still failing", "record", it.recordID, "error", err)
			continue
		}
		c.mu.Lock()
		delete(c.photos, it.recordID)
		c.mu.Unlock()
	}
}

func isBenignDelete(err error) bool {
	return err == nil ||
		errors.Is(err, remote.ErrRecordNotFound) ||
		errors.Is(err, remote.ErrZoneNotFound)
}

// Run watches reachability and drains the queues on each transition from
// unreachable to reachable. Blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reachable := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		up := c.svc.Ping(ctx) == nil
		if up && !reachable {
			c.log.Info(ctx, "service reachable again, draining retry queues")
			c.RetryPending(ctx)
		}
		reachable = up
	}
}
