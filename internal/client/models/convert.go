package models

import "strconv"

// Wire field keys for the per-kind payloads. The converter maps each typed
// optional field to exactly one key; unknown keys arriving from the service
// are ignored.
const (
	fieldSymptom    = "symptom"
	fieldSeverity   = "severity"
	fieldNotes      = "notes"
	fieldSubstance  = "substance"
	fieldRoute      = "route"
	fieldAmount     = "amount"
	fieldMedication = "medication"
	fieldDose       = "dose"
	fieldTaken      = "taken"
)

// ToRemote converts a domain record to its flat remote representation,
// addressed into the given zone. Optional fields that are unset are omitted
// from the field map to keep the wire payload minimal.
func ToRemote(r *Record, zone ZoneID) RemoteRecord {
	rr := RemoteRecord{
		Name:       RemoteName(r.ID),
		ID:         r.ID,
		Zone:       zone,
		Kind:       string(r.Kind),
		Time:       r.Time,
		ModifiedAt: r.ModifiedAt,
		HasPhoto:   r.HasPhoto,
		Fields:     map[string]string{},
	}

	put := func(key, value string) {
		if value != "" {
			rr.Fields[key] = value
		}
	}

	switch {
	case r.Event != nil:
		put(fieldSymptom, r.Event.Symptom)
		if r.Event.Severity != 0 {
			rr.Fields[fieldSeverity] = strconv.Itoa(r.Event.Severity)
		}
		put(fieldNotes, r.Event.Notes)
	case r.Exposure != nil:
		put(fieldSubstance, r.Exposure.Substance)
		put(fieldRoute, r.Exposure.Route)
		put(fieldAmount, r.Exposure.Amount)
	case r.Completion != nil:
		put(fieldMedication, r.Completion.Medication)
		put(fieldDose, r.Completion.Dose)
		if r.Completion.Taken {
			rr.Fields[fieldTaken] = "true"
		}
	}

	if len(rr.Fields) == 0 {
		rr.Fields = nil
	}
	return rr
}

// FromRemote converts a remote record back to the domain form. The sync
// surface receives records of kinds it may not fully understand, so any
// record missing a required field (ordering timestamp, kind discriminator,
// identifier) yields ok=false instead of an error.
func FromRemote(rr RemoteRecord) (*Record, bool) {
	if rr.Time.IsZero() || rr.Kind == "" {
		return nil, false
	}
	id := rr.ID
	if id == "" {
		return nil, false
	}

	r := &Record{
		ID:          id,
		Kind:        RecordKind(rr.Kind),
		Time:        rr.Time,
		ModifiedAt:  rr.ModifiedAt,
		HasPhoto:    rr.HasPhoto,
		PhotoSynced: rr.HasPhoto,
	}

	get := func(key string) string { return rr.Fields[key] }

	switch r.Kind {
	case KindEvent:
		severity, _ := strconv.Atoi(get(fieldSeverity))
		r.Event = &EventDetails{
			Symptom:  get(fieldSymptom),
			Severity: severity,
			Notes:    get(fieldNotes),
		}
	case KindExposure:
		r.Exposure = &ExposureDetails{
			Substance: get(fieldSubstance),
			Route:     get(fieldRoute),
			Amount:    get(fieldAmount),
		}
	case KindCompletion:
		r.Completion = &CompletionDetails{
			Medication: get(fieldMedication),
			Dose:       get(fieldDose),
			Taken:      get(fieldTaken) == "true",
		}
	default:
		return nil, false
	}

	return r, true
}
