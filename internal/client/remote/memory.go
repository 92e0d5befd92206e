package remote

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/google/uuid"
)

// Memory is an in-process sync service shared by any number of device
// sessions. It mirrors the semantics of the HTTP backend closely enough for
// coordinator tests and for multi-device scenarios without a network.
type Memory struct {
	mu          sync.Mutex
	zones       map[string]*memZone
	invitations map[string]models.ZoneID
	subs        map[string]models.Subscription
	assets      map[string][]byte

	down bool
}

type memChange struct {
	seq     int64
	name    string
	id      string
	deleted bool
}

type memZone struct {
	id           models.ZoneID
	records      map[string]models.RemoteRecord
	log          []memChange
	seq          int64
	minSeq       int64
	share        *models.Share
	participants map[string]models.Participant
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		zones:       map[string]*memZone{},
		invitations: map[string]models.ZoneID{},
		subs:        map[string]models.Subscription{},
		assets:      map[string][]byte{},
	}
}

// SetUnavailable toggles transient-failure injection: while set, every call
// fails with ErrUnavailable.
func (m *Memory) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = v
}

// ExpireTokens invalidates every change token handed out so far for the
// zone, as a compaction would.
func (m *Memory) ExpireTokens(zone models.ZoneID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zone.String()]; ok {
		z.minSeq = z.seq
		z.log = nil
	}
}

// Session returns a Service view of the backend acting as the given account.
func (m *Memory) Session(user string) *MemorySession {
	return &MemorySession{backend: m, user: user}
}

// MemorySession implements Service for one account against a shared Memory.
type MemorySession struct {
	backend *Memory
	user    string
}

var _ Service = (*MemorySession)(nil)

func (s *MemorySession) guard() error {
	if s.backend.down {
		return ErrUnavailable
	}
	return nil
}

func (s *MemorySession) Ping(ctx context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.guard()
}

func (s *MemorySession) CreateZone(ctx context.Context, zone models.ZoneID) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if _, ok := s.backend.zones[zone.String()]; ok {
		return ErrZoneExists
	}
	s.backend.zones[zone.String()] = &memZone{
		id:           zone,
		records:      map[string]models.RemoteRecord{},
		participants: map[string]models.Participant{},
	}
	return nil
}

func (s *MemorySession) ZoneExists(ctx context.Context, zone models.ZoneID) (bool, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return false, err
	}
	_, ok := s.backend.zones[zone.String()]
	return ok, nil
}

func (s *MemorySession) ListSharedZones(ctx context.Context) ([]models.ZoneID, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	var out []models.ZoneID
	for _, z := range s.backend.zones {
		if z.id.Owner == s.user {
			continue
		}
		if p, ok := z.participants[s.user]; ok && p.Status == models.ParticipantAccepted {
			out = append(out, z.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemorySession) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.backend.subs[s.user+"/"+sub.ID] = sub
	return nil
}

func (s *MemorySession) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	sub, ok := s.backend.subs[s.user+"/"+id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &sub, nil
}

func (s *MemorySession) SaveRecords(ctx context.Context, zone models.ZoneID, records []models.RemoteRecord) ([]SaveResult, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}
	for _, rr := range records {
		existing, ok := z.records[rr.Name]
		if ok {
			// changed-keys: overlay only the provided field keys
			if existing.Fields == nil {
				existing.Fields = map[string]string{}
			}
			for k, v := range rr.Fields {
				existing.Fields[k] = v
			}
			existing.Time = rr.Time
			existing.ModifiedAt = rr.ModifiedAt
			existing.HasPhoto = rr.HasPhoto
			z.records[rr.Name] = existing
		} else {
			rr.Zone = zone
			z.records[rr.Name] = rr
		}
		z.seq++
		z.log = append(z.log, memChange{seq: z.seq, name: rr.Name, id: rr.ID})
	}
	return nil, nil
}

func (s *MemorySession) DeleteRecord(ctx context.Context, zone models.ZoneID, name string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return ErrZoneNotFound
	}
	rr, ok := z.records[name]
	if !ok {
		return ErrRecordNotFound
	}
	delete(z.records, name)
	z.seq++
	z.log = append(z.log, memChange{seq: z.seq, name: name, id: rr.ID, deleted: true})
	return nil
}

func (s *MemorySession) QueryRecords(ctx context.Context, zone models.ZoneID, from, to time.Time) ([]models.RemoteRecord, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}
	var out []models.RemoteRecord
	for _, rr := range z.records {
		if rr.Time.Before(from) || !rr.Time.Before(to) {
			continue
		}
		out = append(out, rr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *MemorySession) Changes(ctx context.Context, zone models.ZoneID, token string) (*models.ChangeSet, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}

	since := int64(0)
	if token != "" {
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil || n < z.minSeq {
			return nil, ErrChangeTokenExpired
		}
		since = n
	}

	cs := &models.ChangeSet{Token: strconv.FormatInt(z.seq, 10)}
	seen := map[string]bool{}
	for i := len(z.log) - 1; i >= 0; i-- {
		entry := z.log[i]
		if entry.seq <= since {
			break
		}
		if seen[entry.name] {
			continue
		}
		seen[entry.name] = true
		if entry.deleted {
			cs.DeletedIDs = append(cs.DeletedIDs, entry.id)
		} else if rr, ok := z.records[entry.name]; ok {
			cs.Changed = append(cs.Changed, rr)
		}
	}
	sort.Slice(cs.Changed, func(i, j int) bool { return cs.Changed[i].Time.Before(cs.Changed[j].Time) })
	return cs, nil
}

func (s *MemorySession) CreateShare(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}
	if z.share == nil {
		token := uuid.NewString()
		z.share = &models.Share{ID: uuid.NewString(), Zone: zone, Token: token}
		s.backend.invitations[token] = zone
	}
	return s.shareWithParticipants(z), nil
}

func (s *MemorySession) FetchShare(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}
	if z.share == nil {
		return nil, ErrShareNotFound
	}
	return s.shareWithParticipants(z), nil
}

func (s *MemorySession) shareWithParticipants(z *memZone) *models.Share {
	out := *z.share
	out.Participants = participantList(z)
	return &out
}

func participantList(z *memZone) []models.Participant {
	var out []models.Participant
	for _, p := range z.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

func (s *MemorySession) Participants(ctx context.Context, zone models.ZoneID) ([]models.Participant, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return nil, ErrZoneNotFound
	}
	return participantList(z), nil
}

func (s *MemorySession) RevokeShare(ctx context.Context, zone models.ZoneID) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	z, ok := s.backend.zones[zone.String()]
	if !ok {
		return ErrZoneNotFound
	}
	if z.share != nil {
		delete(s.backend.invitations, z.share.Token)
	}
	z.share = nil
	z.participants = map[string]models.Participant{}
	return nil
}

func (s *MemorySession) AcceptInvitation(ctx context.Context, token string) (*models.ZoneID, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	zone, ok := s.backend.invitations[token]
	if !ok {
		return nil, ErrInvitationInvalid
	}
	z := s.backend.zones[zone.String()]
	now := time.Now().UTC()
	z.participants[s.user] = models.Participant{
		User:       s.user,
		Status:     models.ParticipantAccepted,
		AcceptedAt: &now,
	}
	return &zone, nil
}

func (s *MemorySession) UploadPhoto(ctx context.Context, zone models.ZoneID, recordID string, payload []byte) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if _, ok := s.backend.zones[zone.String()]; !ok {
		return ErrZoneNotFound
	}
	s.backend.assets[zone.String()+"/"+recordID] = append([]byte(nil), payload...)
	return nil
}

func (s *MemorySession) DownloadPhoto(ctx context.Context, zone models.ZoneID, recordID string) ([]byte, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	payload, ok := s.backend.assets[zone.String()+"/"+recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append([]byte(nil), payload...), nil
}
