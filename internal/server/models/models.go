// Package models holds the server's storage-level types. Wire types shared
// with the client live in internal/client/models.
package models

import "time"

type Account struct {
	Name       string
	SecretHash string
	CreatedAt  time.Time
}

type Device struct {
	ID        string
	Account   string
	Name      string
	CreatedAt time.Time
}

// ZoneInfo is a zone row with its change-log counters. ChangeSeq advances
// on every write; MinSeq is the compaction floor below which change tokens
// are no longer answerable.
type ZoneInfo struct {
	Owner     string
	Name      string
	ChangeSeq int64
	MinSeq    int64
}

// StoredRecord is one record row. Deleted rows are tombstones: fields are
// cleared but the row keeps its ServerSeq so incremental pulls see the
// deletion.
type StoredRecord struct {
	ZoneOwner  string
	ZoneName   string
	Name       string
	RecordID   string
	Kind       string
	EventTime  time.Time
	ModifiedAt time.Time
	HasPhoto   bool
	Fields     map[string]string
	Deleted    bool
	ServerSeq  int64
}
