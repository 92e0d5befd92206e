package retry

import (
	"sort"

	"github.com/dlukins/caresync/internal/client/models"
)

// MergeEvents reconciles a local and a cloud view of the same zone. Records
// are keyed by ID; when both sides carry an ID the cloud copy wins. IDs
// present on only one side survive the merge. The result is ordered by Time
// ascending, so the merge is deterministic for any input order.
func MergeEvents(local, cloud []models.Record) []models.Record {
	byID := make(map[string]models.Record, len(local)+len(cloud))
	for _, r := range local {
		byID[r.ID] = r
	}
	for _, r := range cloud {
		byID[r.ID] = r
	}

	out := make([]models.Record, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
