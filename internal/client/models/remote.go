package models

import "time"

// RemoteRecord is the flat key-value representation of a Record on the wire.
//
// Name is the remote addressing key, derived from the record ID at creation
// time. The ID also travels as an explicit field because a record can move
// between zones during share acceptance and must stay resolvable by ID even
// when the addressing key no longer matches its zone of origin.
//
// Fields holds the per-kind optional payload. Absent optional values are
// omitted from the map entirely, never written as empty placeholders.
type RemoteRecord struct {
	Name       string            `json:"name"`
	ID         string            `json:"id"`
	Zone       ZoneID            `json:"zone"`
	Kind       string            `json:"kind"`
	Time       time.Time         `json:"time"`
	ModifiedAt time.Time         `json:"modifiedAt"`
	HasPhoto   bool              `json:"hasPhoto,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// RemoteName derives the addressing key for a record identifier.
func RemoteName(id string) string {
	return "rec-" + id
}
