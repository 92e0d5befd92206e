package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/dbx"
	"github.com/dlukins/caresync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// NewPostgresStore builds the repository bundle over one connection pool.
func NewPostgresStore(db dbx.DBTX) *Store {
	return &Store{
		Accounts:      &pgAccounts{db: db},
		Zones:         &pgZones{db: db},
		Records:       &pgRecords{db: db},
		Shares:        &pgShares{db: db},
		Subscriptions: &pgSubscriptions{db: db},
	}
}

type pgAccounts struct{ db dbx.DBTX }

func (r *pgAccounts) Get(ctx context.Context, name string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT name, secret_hash, created_at FROM accounts WHERE name = $1`, name)
	var acc models.Account
	err := row.Scan(&acc.Name, &acc.SecretHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *pgAccounts) Create(ctx context.Context, acc *models.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (name, secret_hash) VALUES ($1, $2)`,
		acc.Name, acc.SecretHash)
	if isUniqueViolation(err) {
		return common.ErrorConflict
	}
	return err
}

func (r *pgAccounts) CreateDevice(ctx context.Context, dev *models.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, account, name) VALUES ($1, $2, $3)`,
		dev.ID, dev.Account, dev.Name)
	return err
}

type pgZones struct{ db dbx.DBTX }

func (r *pgZones) Create(ctx context.Context, owner, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO zones (owner, name) VALUES ($1, $2)`, owner, name)
	if isUniqueViolation(err) {
		return common.ErrZoneExists
	}
	return err
}

func (r *pgZones) Get(ctx context.Context, owner, name string) (*models.ZoneInfo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT owner, name, change_seq, min_seq FROM zones WHERE owner = $1 AND name = $2`,
		owner, name)
	var z models.ZoneInfo
	err := row.Scan(&z.Owner, &z.Name, &z.ChangeSeq, &z.MinSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrZoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return &z, nil
}

func (r *pgZones) NextSeq(ctx context.Context, owner, name string) (int64, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE zones SET change_seq = change_seq + 1 WHERE owner = $1 AND name = $2 RETURNING change_seq`,
		owner, name)
	var seq int64
	err := row.Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrZoneNotFound
	}
	return seq, err
}

func (r *pgZones) SharedWith(ctx context.Context, account string) ([]wire.ZoneID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT zone_owner, zone_name FROM zone_participants
		  WHERE account = $1 AND status = $2 ORDER BY zone_owner, zone_name`,
		account, string(wire.ParticipantAccepted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.ZoneID
	for rows.Next() {
		var z wire.ZoneID
		if err := rows.Scan(&z.Owner, &z.Name); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

type pgRecords struct{ db dbx.DBTX }

const recordColumns = `zone_owner, zone_name, name, record_id, kind, event_time,
	modified_at, has_photo, fields, deleted, server_seq`

func scanStoredRecord(scan func(dest ...any) error) (*models.StoredRecord, error) {
	var rec models.StoredRecord
	var fields []byte
	err := scan(&rec.ZoneOwner, &rec.ZoneName, &rec.Name, &rec.RecordID, &rec.Kind,
		&rec.EventTime, &rec.ModifiedAt, &rec.HasPhoto, &fields, &rec.Deleted, &rec.ServerSeq)
	if err != nil {
		return nil, err
	}
	if err := unmarshalFields(fields, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *pgRecords) Get(ctx context.Context, owner, name, recName string) (*models.StoredRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records
		  WHERE zone_owner = $1 AND zone_name = $2 AND name = $3`,
		owner, name, recName)
	rec, err := scanStoredRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return rec, err
}

func (r *pgRecords) Upsert(ctx context.Context, rec *models.StoredRecord) error {
	fields, err := marshalFields(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (zone_owner, zone_name, name) DO UPDATE SET
		   record_id = EXCLUDED.record_id,
		   kind = EXCLUDED.kind,
		   event_time = EXCLUDED.event_time,
		   modified_at = EXCLUDED.modified_at,
		   has_photo = EXCLUDED.has_photo,
		   fields = EXCLUDED.fields,
		   deleted = EXCLUDED.deleted,
		   server_seq = EXCLUDED.server_seq`,
		rec.ZoneOwner, rec.ZoneName, rec.Name, rec.RecordID, rec.Kind,
		rec.EventTime, rec.ModifiedAt, rec.HasPhoto, fields, rec.Deleted, rec.ServerSeq)
	return err
}

func (r *pgRecords) MarkDeleted(ctx context.Context, owner, name, recName string, seq int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET deleted = TRUE, fields = '{}', modified_at = $4, server_seq = $5
		  WHERE zone_owner = $1 AND zone_name = $2 AND name = $3 AND NOT deleted`,
		owner, name, recName, at, seq)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *pgRecords) QueryRange(ctx context.Context, owner, name string, from, to time.Time) ([]models.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		  WHERE zone_owner = $1 AND zone_name = $2 AND NOT deleted
		    AND event_time >= $3 AND event_time < $4
		  ORDER BY event_time`,
		owner, name, from, to)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *pgRecords) ChangedSince(ctx context.Context, owner, name string, seq int64) ([]models.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		  WHERE zone_owner = $1 AND zone_name = $2 AND server_seq > $3
		  ORDER BY server_seq`,
		owner, name, seq)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]models.StoredRecord, error) {
	defer rows.Close()
	var out []models.StoredRecord
	for rows.Next() {
		rec, err := scanStoredRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type pgShares struct{ db dbx.DBTX }

func (r *pgShares) Create(ctx context.Context, owner, name string, share *wire.Share) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shares (zone_owner, zone_name, id, token) VALUES ($1, $2, $3, $4)`,
		owner, name, share.ID, share.Token)
	if isUniqueViolation(err) {
		return common.ErrorConflict
	}
	return err
}

func (r *pgShares) Get(ctx context.Context, owner, name string) (*wire.Share, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, token FROM shares WHERE zone_owner = $1 AND zone_name = $2`,
		owner, name)
	share := wire.Share{Zone: wire.ZoneID{Owner: owner, Name: name}}
	err := row.Scan(&share.ID, &share.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func (r *pgShares) GetByToken(ctx context.Context, token string) (*wire.ZoneID, *wire.Share, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT zone_owner, zone_name, id FROM shares WHERE token = $1`, token)
	var zone wire.ZoneID
	var id string
	err := row.Scan(&zone.Owner, &zone.Name, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &zone, &wire.Share{ID: id, Zone: zone, Token: token}, nil
}

func (r *pgShares) Delete(ctx context.Context, owner, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM shares WHERE zone_owner = $1 AND zone_name = $2`, owner, name)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`DELETE FROM zone_participants WHERE zone_owner = $1 AND zone_name = $2`, owner, name)
	return err
}

func (r *pgShares) Participants(ctx context.Context, owner, name string) ([]wire.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account, status FROM zone_participants
		  WHERE zone_owner = $1 AND zone_name = $2 ORDER BY account`,
		owner, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.Participant
	for rows.Next() {
		var p wire.Participant
		var status string
		if err := rows.Scan(&p.User, &status); err != nil {
			return nil, err
		}
		p.Status = wire.ParticipantStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgShares) UpsertParticipant(ctx context.Context, owner, name, account string, status wire.ParticipantStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO zone_participants (zone_owner, zone_name, account, status, accepted_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (zone_owner, zone_name, account) DO UPDATE SET
		   status = EXCLUDED.status, accepted_at = EXCLUDED.accepted_at`,
		owner, name, account, string(status))
	return err
}

type pgSubscriptions struct{ db dbx.DBTX }

func (r *pgSubscriptions) Get(ctx context.Context, account, id string) (*wire.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, zone_owner, zone_name, silent FROM subscriptions
		  WHERE account = $1 AND id = $2`, account, id)
	var sub wire.Subscription
	err := row.Scan(&sub.ID, &sub.Zone.Owner, &sub.Zone.Name, &sub.Silent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *pgSubscriptions) Upsert(ctx context.Context, account string, sub wire.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, account, zone_owner, zone_name, silent)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account, id) DO UPDATE SET
		   zone_owner = EXCLUDED.zone_owner,
		   zone_name = EXCLUDED.zone_name,
		   silent = EXCLUDED.silent`,
		sub.ID, account, sub.Zone.Owner, sub.Zone.Name, sub.Silent)
	return err
}

func marshalFields(rec *models.StoredRecord) ([]byte, error) {
	if rec.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(rec.Fields)
}

func unmarshalFields(raw []byte, rec *models.StoredRecord) error {
	if len(raw) == 0 {
		rec.Fields = map[string]string{}
		return nil
	}
	return json.Unmarshal(raw, &rec.Fields)
}
