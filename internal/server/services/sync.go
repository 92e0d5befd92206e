// Package services implements the server's domain operations over the
// storage repositories: enrollment, record sync, sharing, and asset URL
// issuance.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/dbx"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/dlukins/caresync/internal/server/models"
	"github.com/dlukins/caresync/internal/server/storage"
)

// StoreFactory builds a repository bundle over a connection or transaction.
type StoreFactory func(db dbx.DBTX) *storage.Store

// Backend binds services to their persistence: the handle repositories
// read through, the transaction runner, and the repository factory.
type Backend struct {
	DB     dbx.DBTX
	Run    dbx.Runner
	Stores StoreFactory
}

func (b Backend) store() *storage.Store { return b.Stores(b.DB) }

// SaveFailure reports one rejected record within a batch.
type SaveFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SyncService owns zones and records.
type SyncService struct {
	backend Backend
	log     logging.Logger
}

func NewSyncService(backend Backend, log logging.Logger) *SyncService {
	return &SyncService{backend: backend, log: log}
}

// ZoneVisible reports whether account may read the zone: its owner always
// can, everyone else needs accepted participation.
func (s *SyncService) ZoneVisible(ctx context.Context, account string, zone wire.ZoneID) (bool, error) {
	st := s.backend.store()
	if _, err := st.Zones.Get(ctx, zone.Owner, zone.Name); err != nil {
		if errors.Is(err, common.ErrZoneNotFound) {
			return false, nil
		}
		return false, err
	}
	if zone.Owner == account {
		return true, nil
	}
	parts, err := st.Shares.Participants(ctx, zone.Owner, zone.Name)
	if err != nil {
		return false, err
	}
	for _, p := range parts {
		if p.User == account && p.Status == wire.ParticipantAccepted {
			return true, nil
		}
	}
	return false, nil
}

// CreateZone creates account's zone. Only owners create their own zones.
func (s *SyncService) CreateZone(ctx context.Context, account string, zone wire.ZoneID) error {
	if zone.Owner != account {
		return common.ErrorUnauthorized
	}
	if zone.Name == "" {
		return fmt.Errorf("zone name required")
	}
	return s.backend.store().Zones.Create(ctx, zone.Owner, zone.Name)
}

func (s *SyncService) GetZone(ctx context.Context, zone wire.ZoneID) (*models.ZoneInfo, error) {
	return s.backend.store().Zones.Get(ctx, zone.Owner, zone.Name)
}

func (s *SyncService) SharedZones(ctx context.Context, account string) ([]wire.ZoneID, error) {
	return s.backend.store().Zones.SharedWith(ctx, account)
}

func validateRecord(rr *wire.RemoteRecord) error {
	if rr.ID == "" {
		return fmt.Errorf("missing record id")
	}
	if rr.Kind == "" {
		return fmt.Errorf("missing kind")
	}
	if rr.Time.IsZero() {
		return fmt.Errorf("missing ordering time")
	}
	return nil
}

// SaveRecords applies a batch with changed-keys semantics: only the field
// keys present in each incoming record overwrite the stored ones, so two
// writers editing disjoint fields of one record both keep their edits. The
// batch is not atomic; each record succeeds or fails on its own.
func (s *SyncService) SaveRecords(ctx context.Context, account string, zone wire.ZoneID, incoming []wire.RemoteRecord) ([]SaveFailure, error) {
	visible, err := s.ZoneVisible(ctx, account, zone)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, common.ErrZoneNotFound
	}

	var failed []SaveFailure
	for i := range incoming {
		rr := &incoming[i]
		if err := validateRecord(rr); err != nil {
			failed = append(failed, SaveFailure{ID: rr.ID, Error: err.Error()})
			continue
		}
		if err := s.saveOne(ctx, zone, rr); err != nil {
			s.log.Warn(ctx, "record save failed", "record", rr.ID, "error", err)
			failed = append(failed, SaveFailure{ID: rr.ID, Error: err.Error()})
		}
	}
	return failed, nil
}

func (s *SyncService) saveOne(ctx context.Context, zone wire.ZoneID, rr *wire.RemoteRecord) error {
	return s.backend.Run.RunTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		st := s.backend.Stores(tx)

		fields := map[string]string{}
		existing, err := st.Records.Get(ctx, zone.Owner, zone.Name, rr.Name)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if existing != nil && !existing.Deleted {
			for k, v := range existing.Fields {
				fields[k] = v
			}
		}
		for k, v := range rr.Fields {
			fields[k] = v
		}

		seq, err := st.Zones.NextSeq(ctx, zone.Owner, zone.Name)
		if err != nil {
			return err
		}

		modifiedAt := rr.ModifiedAt
		if modifiedAt.IsZero() {
			modifiedAt = time.Now().UTC()
		}

		return st.Records.Upsert(ctx, &models.StoredRecord{
			ZoneOwner:  zone.Owner,
			ZoneName:   zone.Name,
			Name:       rr.Name,
			RecordID:   rr.ID,
			Kind:       rr.Kind,
			EventTime:  rr.Time,
			ModifiedAt: modifiedAt,
			HasPhoto:   rr.HasPhoto,
			Fields:     fields,
			ServerSeq:  seq,
		})
	})
}

// DeleteRecord tombstones the record so incremental pulls propagate the
// deletion. Unknown records yield common.ErrorNotFound.
func (s *SyncService) DeleteRecord(ctx context.Context, account string, zone wire.ZoneID, recName string) error {
	visible, err := s.ZoneVisible(ctx, account, zone)
	if err != nil {
		return err
	}
	if !visible {
		return common.ErrZoneNotFound
	}

	return s.backend.Run.RunTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		st := s.backend.Stores(tx)
		seq, err := st.Zones.NextSeq(ctx, zone.Owner, zone.Name)
		if err != nil {
			return err
		}
		return st.Records.MarkDeleted(ctx, zone.Owner, zone.Name, recName, seq, time.Now().UTC())
	})
}

// QueryRecords returns live records with event time in [from, to).
func (s *SyncService) QueryRecords(ctx context.Context, account string, zone wire.ZoneID, from, to time.Time) ([]wire.RemoteRecord, error) {
	visible, err := s.ZoneVisible(ctx, account, zone)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, common.ErrZoneNotFound
	}

	recs, err := s.backend.store().Records.QueryRange(ctx, zone.Owner, zone.Name, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]wire.RemoteRecord, 0, len(recs))
	for i := range recs {
		out = append(out, toWire(&recs[i], zone))
	}
	return out, nil
}

// Changes answers an incremental pull. An empty token means "everything".
// Tokens older than the zone's compaction floor yield
// common.ErrChangeTokenExpired.
func (s *SyncService) Changes(ctx context.Context, account string, zone wire.ZoneID, sinceToken string) (*wire.ChangeSet, error) {
	visible, err := s.ZoneVisible(ctx, account, zone)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, common.ErrZoneNotFound
	}

	st := s.backend.store()
	info, err := st.Zones.Get(ctx, zone.Owner, zone.Name)
	if err != nil {
		return nil, err
	}

	var since int64
	if sinceToken != "" {
		since, err = decodeChangeToken(sinceToken)
		if err != nil {
			return nil, err
		}
		if since < info.MinSeq {
			return nil, common.ErrChangeTokenExpired
		}
	}

	rows, err := st.Records.ChangedSince(ctx, zone.Owner, zone.Name, since)
	if err != nil {
		return nil, err
	}

	cs := &wire.ChangeSet{}
	latest := since
	for i := range rows {
		row := &rows[i]
		if row.ServerSeq > latest {
			latest = row.ServerSeq
		}
		if row.Deleted {
			cs.DeletedIDs = append(cs.DeletedIDs, row.RecordID)
			continue
		}
		cs.Changed = append(cs.Changed, toWire(row, zone))
	}
	cs.Token = encodeChangeToken(latest)
	return cs, nil
}

// SaveSubscription upserts account's change-notification subscription.
func (s *SyncService) SaveSubscription(ctx context.Context, account string, sub wire.Subscription) error {
	visible, err := s.ZoneVisible(ctx, account, sub.Zone)
	if err != nil {
		return err
	}
	if !visible {
		return common.ErrZoneNotFound
	}
	return s.backend.store().Subscriptions.Upsert(ctx, account, sub)
}

// GetSubscription fetches account's subscription by ID.
func (s *SyncService) GetSubscription(ctx context.Context, account, id string) (*wire.Subscription, error) {
	return s.backend.store().Subscriptions.Get(ctx, account, id)
}

func toWire(rec *models.StoredRecord, zone wire.ZoneID) wire.RemoteRecord {
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return wire.RemoteRecord{
		Name:       rec.Name,
		ID:         rec.RecordID,
		Zone:       zone,
		Kind:       rec.Kind,
		Time:       rec.EventTime,
		ModifiedAt: rec.ModifiedAt,
		HasPhoto:   rec.HasPhoto,
		Fields:     fields,
	}
}
