// Package storage is the server's persistence layer: Postgres repositories
// over the shared DBTX abstraction, one per aggregate.
package storage

import (
	"context"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/server/models"
)

// Accounts persists accounts and their enrolled devices. Absent rows
// surface as common.ErrorNotFound.
type Accounts interface {
	Get(ctx context.Context, name string) (*models.Account, error)
	Create(ctx context.Context, acc *models.Account) error
	CreateDevice(ctx context.Context, dev *models.Device) error
}

// Zones persists zone rows and their change-log counters.
type Zones interface {
	// Create inserts the zone; an existing zone yields common.ErrZoneExists.
	Create(ctx context.Context, owner, name string) error
	Get(ctx context.Context, owner, name string) (*models.ZoneInfo, error)
	// NextSeq atomically advances and returns the zone's change sequence.
	NextSeq(ctx context.Context, owner, name string) (int64, error)
	// SharedWith lists zones where account is an accepted participant.
	SharedWith(ctx context.Context, account string) ([]wire.ZoneID, error)
}

// Records persists record rows and answers range and delta queries.
type Records interface {
	Get(ctx context.Context, owner, name, recName string) (*models.StoredRecord, error)
	Upsert(ctx context.Context, rec *models.StoredRecord) error
	// MarkDeleted turns the row into a tombstone at the given sequence.
	// A missing row yields common.ErrorNotFound.
	MarkDeleted(ctx context.Context, owner, name, recName string, seq int64, at time.Time) error
	// QueryRange returns live records with event time in [from, to),
	// ascending.
	QueryRange(ctx context.Context, owner, name string, from, to time.Time) ([]models.StoredRecord, error)
	// ChangedSince returns rows (tombstones included) with server_seq
	// greater than seq, ascending by sequence.
	ChangedSince(ctx context.Context, owner, name string, seq int64) ([]models.StoredRecord, error)
}

// Shares persists a zone's single share and its participants.
type Shares interface {
	Create(ctx context.Context, owner, name string, share *wire.Share) error
	Get(ctx context.Context, owner, name string) (*wire.Share, error)
	// GetByToken resolves an invitation token to its zone and share.
	GetByToken(ctx context.Context, token string) (*wire.ZoneID, *wire.Share, error)
	Delete(ctx context.Context, owner, name string) error
	Participants(ctx context.Context, owner, name string) ([]wire.Participant, error)
	UpsertParticipant(ctx context.Context, owner, name, account string, status wire.ParticipantStatus) error
}

// Subscriptions persists change-notification subscriptions per account.
type Subscriptions interface {
	Get(ctx context.Context, account, id string) (*wire.Subscription, error)
	Upsert(ctx context.Context, account string, sub wire.Subscription) error
}

// Store bundles the repositories a request handler needs.
type Store struct {
	Accounts      Accounts
	Zones         Zones
	Records       Records
	Shares        Shares
	Subscriptions Subscriptions
}
