package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/server/models"
)

// MemoryStore is an in-memory Store for tests. It ignores the DBTX handed
// to the factory, so transactional service code runs against it unchanged.
type MemoryStore struct {
	mu sync.Mutex

	accounts      map[string]models.Account
	devices       map[string]models.Device
	zones         map[[2]string]*models.ZoneInfo
	records       map[[3]string]models.StoredRecord
	shares        map[[2]string]wire.Share
	sharesByToken map[string][2]string
	participants  map[[3]string]wire.Participant
	subscriptions map[[2]string]wire.Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      map[string]models.Account{},
		devices:       map[string]models.Device{},
		zones:         map[[2]string]*models.ZoneInfo{},
		records:       map[[3]string]models.StoredRecord{},
		shares:        map[[2]string]wire.Share{},
		sharesByToken: map[string][2]string{},
		participants:  map[[3]string]wire.Participant{},
		subscriptions: map[[2]string]wire.Subscription{},
	}
}

// Bundle exposes the fake through the Store interfaces.
func (m *MemoryStore) Bundle() *Store {
	return &Store{
		Accounts:      (*memAccounts)(m),
		Zones:         (*memZones)(m),
		Records:       (*memRecords)(m),
		Shares:        (*memShares)(m),
		Subscriptions: (*memSubscriptions)(m),
	}
}

// SetMinSeq raises a zone's compaction floor, expiring older change tokens.
func (m *MemoryStore) SetMinSeq(owner, name string, seq int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[[2]string{owner, name}]; ok {
		z.MinSeq = seq
	}
}

type memAccounts MemoryStore

func (m *memAccounts) Get(ctx context.Context, name string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &acc, nil
}

func (m *memAccounts) Create(ctx context.Context, acc *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acc.Name]; ok {
		return common.ErrorConflict
	}
	m.accounts[acc.Name] = *acc
	return nil
}

func (m *memAccounts) CreateDevice(ctx context.Context, dev *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[dev.ID] = *dev
	return nil
}

type memZones MemoryStore

func (m *memZones) Create(ctx context.Context, owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{owner, name}
	if _, ok := m.zones[key]; ok {
		return common.ErrZoneExists
	}
	m.zones[key] = &models.ZoneInfo{Owner: owner, Name: name}
	return nil
}

func (m *memZones) Get(ctx context.Context, owner, name string) (*models.ZoneInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[[2]string{owner, name}]
	if !ok {
		return nil, common.ErrZoneNotFound
	}
	out := *z
	return &out, nil
}

func (m *memZones) NextSeq(ctx context.Context, owner, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[[2]string{owner, name}]
	if !ok {
		return 0, common.ErrZoneNotFound
	}
	z.ChangeSeq++
	return z.ChangeSeq, nil
}

func (m *memZones) SharedWith(ctx context.Context, account string) ([]wire.ZoneID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wire.ZoneID
	for key, p := range m.participants {
		if key[2] == account && p.Status == wire.ParticipantAccepted {
			out = append(out, wire.ZoneID{Owner: key[0], Name: key[1]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

type memRecords MemoryStore

func (m *memRecords) Get(ctx context.Context, owner, name, recName string) (*models.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[[3]string{owner, name, recName}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (m *memRecords) Upsert(ctx context.Context, rec *models.StoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[[3]string{rec.ZoneOwner, rec.ZoneName, rec.Name}] = *rec
	return nil
}

func (m *memRecords) MarkDeleted(ctx context.Context, owner, name, recName string, seq int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [3]string{owner, name, recName}
	rec, ok := m.records[key]
	if !ok || rec.Deleted {
		return common.ErrorNotFound
	}
	rec.Deleted = true
	rec.Fields = map[string]string{}
	rec.ModifiedAt = at
	rec.ServerSeq = seq
	m.records[key] = rec
	return nil
}

func (m *memRecords) QueryRange(ctx context.Context, owner, name string, from, to time.Time) ([]models.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StoredRecord
	for key, rec := range m.records {
		if key[0] != owner || key[1] != name || rec.Deleted {
			continue
		}
		if rec.EventTime.Before(from) || !rec.EventTime.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	return out, nil
}

func (m *memRecords) ChangedSince(ctx context.Context, owner, name string, seq int64) ([]models.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StoredRecord
	for key, rec := range m.records {
		if key[0] != owner || key[1] != name || rec.ServerSeq <= seq {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerSeq < out[j].ServerSeq })
	return out, nil
}

type memShares MemoryStore

func (m *memShares) Create(ctx context.Context, owner, name string, share *wire.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{owner, name}
	if _, ok := m.shares[key]; ok {
		return common.ErrorConflict
	}
	m.shares[key] = *share
	m.sharesByToken[share.Token] = key
	return nil
}

func (m *memShares) Get(ctx context.Context, owner, name string) (*wire.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	share, ok := m.shares[[2]string{owner, name}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &share, nil
}

func (m *memShares) GetByToken(ctx context.Context, token string) (*wire.ZoneID, *wire.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.sharesByToken[token]
	if !ok {
		return nil, nil, common.ErrorNotFound
	}
	share := m.shares[key]
	zone := wire.ZoneID{Owner: key[0], Name: key[1]}
	return &zone, &share, nil
}

func (m *memShares) Delete(ctx context.Context, owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{owner, name}
	if share, ok := m.shares[key]; ok {
		delete(m.sharesByToken, share.Token)
	}
	delete(m.shares, key)
	for pkey := range m.participants {
		if pkey[0] == owner && pkey[1] == name {
			delete(m.participants, pkey)
		}
	}
	return nil
}

func (m *memShares) Participants(ctx context.Context, owner, name string) ([]wire.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wire.Participant
	for key, p := range m.participants {
		if key[0] == owner && key[1] == name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (m *memShares) UpsertParticipant(ctx context.Context, owner, name, account string, status wire.ParticipantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[[3]string{owner, name, account}] = wire.Participant{User: account, Status: status}
	return nil
}

type memSubscriptions MemoryStore

func (m *memSubscriptions) Get(ctx context.Context, account, id string) (*wire.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[[2]string{account, id}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &sub, nil
}

func (m *memSubscriptions) Upsert(ctx context.Context, account string, sub wire.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[[2]string{account, sub.ID}] = sub
	return nil
}
