// Package models defines client-side data models for the care journal:
// domain records, zones, and the flat remote representation exchanged with
// the sync service.
package models

import "time"

// RecordKind classifies a journal record.
type RecordKind string

const (
	KindEvent      RecordKind = "event"
	KindExposure   RecordKind = "exposure"
	KindCompletion RecordKind = "completion"
)

// Scope selects which local partition and zone set is "current".
// Exactly one scope is active at a time; switching is an explicit
// transition, never implicit per call.
type Scope string

const (
	ScopeOwner       Scope = "owner"
	ScopeParticipant Scope = "participant"
)

// EventDetails describes a logged symptom event.
type EventDetails struct {
	Symptom  string
	Severity int
	Notes    string
}

// ExposureDetails describes an exposure to a tracked substance.
type ExposureDetails struct {
	Substance string
	Route     string
	Amount    string
}

// CompletionDetails describes a medication completion record.
type CompletionDetails struct {
	Medication string
	Dose       string
	Taken      bool
}

// Record is the synchronizable unit. ID is client-generated and immutable
// for the record's lifetime; it is the merge key across local and remote
// copies. Time orders records for display; ModifiedAt drives conflict
// resolution by recency. Exactly one of the per-kind detail structs is set,
// matching Kind.
type Record struct {
	ID         string
	Kind       RecordKind
	Time       time.Time
	ModifiedAt time.Time

	Event      *EventDetails
	Exposure   *ExposureDetails
	Completion *CompletionDetails

	// HasPhoto marks that a photo asset belongs to this record.
	// PhotoSynced marks that the asset has been uploaded to the remote
	// service; a device where PhotoSynced is true but the local file is
	// absent still needs to download it.
	HasPhoto    bool
	PhotoSynced bool
}

// ZoneID names a zone: a partition owned by exactly one account and the
// unit of sharing.
type ZoneID struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (z ZoneID) String() string {
	return z.Owner + "/" + z.Name
}

// Subscription asks the service for silent (data-only) change delivery on a
// zone. The ID is deterministic per zone and scope so ensure-style creation
// stays idempotent.
type Subscription struct {
	ID     string `json:"id"`
	Zone   ZoneID `json:"zone"`
	Silent bool   `json:"silent"`
}

// ParticipantStatus describes a share participant's acceptance state.
type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantAccepted ParticipantStatus = "accepted"
)

// Participant is one account a zone is shared with.
type Participant struct {
	User       string            `json:"user"`
	Status     ParticipantStatus `json:"status"`
	AcceptedAt *time.Time        `json:"acceptedAt,omitempty"`
}

// Share is a shareable invitation for a zone.
type Share struct {
	ID           string        `json:"id"`
	Zone         ZoneID        `json:"zone"`
	Token        string        `json:"token"`
	Participants []Participant `json:"participants,omitempty"`
}

// ChangeSet is the result of an incremental pull: everything that changed in
// a zone since the supplied change token, plus the next token.
type ChangeSet struct {
	Changed    []RemoteRecord `json:"changed"`
	DeletedIDs []string       `json:"deletedIds"`
	Token      string         `json:"token"`
}
