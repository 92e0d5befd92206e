// Package records provides the client-side persistence layer for journal
// records, one instance per local partition.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/dbx"
)

// sqlTimeLayout is fixed-width so stored timestamps compare correctly as
// text in range queries. Always UTC.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// detailsPayload is the stored JSON form of the per-kind variant.
type detailsPayload struct {
	Event      *models.EventDetails      `json:"event,omitempty"`
	Exposure   *models.ExposureDetails   `json:"exposure,omitempty"`
	Completion *models.CompletionDetails `json:"completion,omitempty"`
}

func encodeDetails(rec *models.Record) (string, error) {
	b, err := json.Marshal(detailsPayload{
		Event:      rec.Event,
		Exposure:   rec.Exposure,
		Completion: rec.Completion,
	})
	if err != nil {
		return "", fmt.Errorf("encode details: %w", err)
	}
	return string(b), nil
}

func decodeDetails(raw string, rec *models.Record) error {
	var p detailsPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	rec.Event = p.Event
	rec.Exposure = p.Exposure
	rec.Completion = p.Completion
	return nil
}

// Upsert inserts or replaces a record by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	details, err := encodeDetails(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO records (id, kind, event_time, modified_at, details, has_photo, photo_synced)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET kind = excluded.kind,
				event_time = excluded.event_time,
				modified_at = excluded.modified_at,
				details = excluded.details,
				has_photo = excluded.has_photo,
				photo_synced = excluded.photo_synced
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, string(rec.Kind),
		rec.Time.UTC().Format(sqlTimeLayout),
		rec.ModifiedAt.UTC().Format(sqlTimeLayout),
		details, rec.HasPhoto, rec.PhotoSynced)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var rec models.Record
	var kind, eventTime, modifiedAt, details string
	if err := scan(&rec.ID, &kind, &eventTime, &modifiedAt, &details, &rec.HasPhoto, &rec.PhotoSynced); err != nil {
		return nil, err
	}

	rec.Kind = models.RecordKind(kind)

	var err error
	if rec.Time, err = time.Parse(time.RFC3339Nano, eventTime); err != nil {
		return nil, fmt.Errorf("parse event_time: %w", err)
	}
	if rec.ModifiedAt, err = time.Parse(time.RFC3339Nano, modifiedAt); err != nil {
		return nil, fmt.Errorf("parse modified_at: %w", err)
	}
	if err := decodeDetails(details, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

const recordColumns = `id, kind, event_time, modified_at, details, has_photo, photo_synced`

// GetByID returns a single record.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// DeleteByID removes a record. The local copy goes first; the remote
// deletion is queued separately by the caller.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListRange returns records ordered ascending by event time within [from, to).
func (r *SQLiteRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.Record, error) {
	return r.list(ctx,
		`SELECT `+recordColumns+` FROM records WHERE event_time >= ? AND event_time < ? ORDER BY event_time ASC`,
		from.UTC().Format(sqlTimeLayout), to.UTC().Format(sqlTimeLayout))
}

// ListAll returns every record ordered ascending by event time.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.Record, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM records ORDER BY event_time ASC`)
}

// SetPhotoSynced records that the photo asset reached the remote service.
func (r *SQLiteRepository) SetPhotoSynced(ctx context.Context, id string, synced bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE records SET photo_synced = ? WHERE id = ?`, synced, id)
	if err != nil {
		return fmt.Errorf("failed to update photo flag: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}
