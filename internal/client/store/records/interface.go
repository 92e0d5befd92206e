package records

import (
	"context"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
)

// Repository describes CRUD and query operations for journal records in a
// local partition. Implementations are backed by SQLite.
type Repository interface {
	// Upsert inserts a new record or replaces an existing one by ID.
	Upsert(ctx context.Context, rec *models.Record) error

	// GetByID returns a record by identifier, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// DeleteByID removes a record. Deleting an unknown ID returns
	// common.ErrorNotFound.
	DeleteByID(ctx context.Context, id string) error

	// ListRange returns records with ordering timestamp in [from, to),
	// ascending by that timestamp.
	ListRange(ctx context.Context, from, to time.Time) ([]models.Record, error)

	// ListAll returns every record, ascending by ordering timestamp.
	ListAll(ctx context.Context) ([]models.Record, error)

	// SetPhotoSynced flips the remote-asset flag after an upload.
	SetPhotoSynced(ctx context.Context, id string, synced bool) error
}
