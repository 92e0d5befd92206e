package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/store/metadata"
	"github.com/dlukins/caresync/internal/client/store/migrations"
	"github.com/dlukins/caresync/internal/client/store/records"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Metadata keys for per-partition sync state.
const (
	metaScope            = "scope"
	metaParticipantOwner = "participant_zone_owner"
	metaParticipantName  = "participant_zone_name"
	metaMigrationDone    = "migration_completed_v1"
	metaLastSyncAt       = "last_sync_at"

	metaChangeTokenPrefix = "change_token:"
)

var migrateMu sync.Mutex

// Partition is one durable local store (owner or participant), carrying the
// journal records plus the sync metadata that belongs to them.
type Partition struct {
	db       *sql.DB
	Records  records.Repository
	Metadata metadata.Repository
}

// OpenPartition opens (creating if needed) the SQLite database at path and
// brings its schema up to date.
func OpenPartition(ctx context.Context, path string) (*Partition, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", path, err)
	}

	// goose state is package-global; the two partitions open concurrently.
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate partition %s: %w", path, err)
	}

	return &Partition{
		db:       db,
		Records:  records.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}, nil
}

func (p *Partition) DB() *sql.DB { return p.db }

func (p *Partition) Close() error { return p.db.Close() }

// ChangeToken returns the stored change token for a zone, or "" when none
// has been persisted yet. An unreadable value is treated as absent so a
// corrupted token degrades to a first-time sync, never a hard failure.
func (p *Partition) ChangeToken(ctx context.Context, zone models.ZoneID) string {
	v, err := p.Metadata.Get(ctx, metaChangeTokenPrefix+zone.String())
	if err != nil || len(v) == 0 {
		return ""
	}
	return string(v)
}

// SetChangeToken durably persists the change token for a zone.
func (p *Partition) SetChangeToken(ctx context.Context, zone models.ZoneID, token string) error {
	return p.Metadata.Set(ctx, metaChangeTokenPrefix+zone.String(), []byte(token))
}

// ClearChangeToken discards a stale token so the next pull starts fresh.
func (p *Partition) ClearChangeToken(ctx context.Context, zone models.ZoneID) error {
	return p.Metadata.Delete(ctx, metaChangeTokenPrefix+zone.String())
}

// MigrationDone reports whether the one-time local-data migration finished.
func (p *Partition) MigrationDone(ctx context.Context) bool {
	v, err := p.Metadata.Get(ctx, metaMigrationDone)
	return err == nil && string(v) == "1"
}

// SetMigrationDone marks the one-time migration complete.
func (p *Partition) SetMigrationDone(ctx context.Context) error {
	return p.Metadata.Set(ctx, metaMigrationDone, []byte("1"))
}

// SetLastSyncAt records the wall-clock time of the last successful sync.
func (p *Partition) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return p.Metadata.Set(ctx, metaLastSyncAt, []byte(at.UTC().Format(time.RFC3339Nano)))
}

// LastSyncAt returns the recorded last-sync time, zero when never synced.
func (p *Partition) LastSyncAt(ctx context.Context) time.Time {
	v, err := p.Metadata.Get(ctx, metaLastSyncAt)
	if err != nil || len(v) == 0 {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}
	}
	return t
}
