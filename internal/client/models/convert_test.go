package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testZone = ZoneID{Owner: "alice", Name: "CareJournal"}

func TestToRemote_OmitsAbsentOptionalFields(t *testing.T) {
	rec := &Record{
		ID:         uuid.NewString(),
		Kind:       KindEvent,
		Time:       time.Now().UTC(),
		ModifiedAt: time.Now().UTC(),
		Event:      &EventDetails{Symptom: "hives"},
	}

	rr := ToRemote(rec, testZone)

	require.Equal(t, "hives", rr.Fields["symptom"])
	_, hasSeverity := rr.Fields["severity"]
	require.False(t, hasSeverity, "zero severity must be omitted, not written")
	_, hasNotes := rr.Fields["notes"]
	require.False(t, hasNotes)
}

func TestToRemote_IDDistinctFromAddressingKey(t *testing.T) {
	rec := &Record{
		ID:         "abc-123",
		Kind:       KindExposure,
		Time:       time.Now().UTC(),
		ModifiedAt: time.Now().UTC(),
		Exposure:   &ExposureDetails{Substance: "peanut"},
	}

	rr := ToRemote(rec, testZone)

	require.Equal(t, "abc-123", rr.ID)
	require.Equal(t, "rec-abc-123", rr.Name)
	require.NotEqual(t, rr.ID, rr.Name)
}

func TestRoundTrip_AllKinds(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	records := []*Record{
		{
			ID: "e1", Kind: KindEvent, Time: now, ModifiedAt: now,
			Event: &EventDetails{Symptom: "rash", Severity: 3, Notes: "after lunch"},
		},
		{
			ID: "x1", Kind: KindExposure, Time: now, ModifiedAt: now,
			Exposure: &ExposureDetails{Substance: "pollen", Route: "inhaled", Amount: "high"},
		},
		{
			ID: "c1", Kind: KindCompletion, Time: now, ModifiedAt: now,
			Completion: &CompletionDetails{Medication: "antihistamine", Dose: "10mg", Taken: true},
		},
	}

	for _, rec := range records {
		got, ok := FromRemote(ToRemote(rec, testZone))
		require.True(t, ok, "kind %s", rec.Kind)
		require.Equal(t, rec.ID, got.ID)
		require.Equal(t, rec.Kind, got.Kind)
		require.Equal(t, rec.Time, got.Time)
		require.Equal(t, rec.Event, got.Event)
		require.Equal(t, rec.Exposure, got.Exposure)
		require.Equal(t, rec.Completion, got.Completion)
	}
}

func TestFromRemote_MissingRequiredFields(t *testing.T) {
	now := time.Now().UTC()

	cases := map[string]RemoteRecord{
		"no ordering time": {ID: "a", Kind: "event"},
		"no kind":          {ID: "a", Time: now},
		"no id":            {Kind: "event", Time: now},
		"unknown kind":     {ID: "a", Kind: "vitals", Time: now},
	}

	for name, rr := range cases {
		_, ok := FromRemote(rr)
		require.False(t, ok, name)
	}
}

func TestFromRemote_PhotoFlagImpliesRemoteAsset(t *testing.T) {
	now := time.Now().UTC()
	rr := ToRemote(&Record{
		ID: "p1", Kind: KindEvent, Time: now, ModifiedAt: now,
		Event: &EventDetails{Symptom: "swelling"}, HasPhoto: true,
	}, testZone)

	got, ok := FromRemote(rr)
	require.True(t, ok)
	require.True(t, got.HasPhoto)
	require.True(t, got.PhotoSynced, "a record arriving from the service has its asset remotely")
}
