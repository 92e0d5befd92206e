// Package store owns the two durable local partitions (owner, participant),
// resolves remote-account availability at start, and exposes the save,
// accept-invitation, and generate-share primitives. Local writes are the
// source of truth for readers; remote propagation is asynchronous and never
// rolls local state back.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dlukins/caresync/internal/client/events"
	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/client/store/records"
	"github.com/dlukins/caresync/internal/dbx"
	"github.com/dlukins/caresync/internal/logging"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrParticipantNotLoaded is returned by AcceptInvitation when the
	// participant partition failed to load; accepting a share without it
	// would strand the shared data.
	ErrParticipantNotLoaded = errors.New("participant partition not loaded")

	// ErrLocalOnly is returned by remote-backed primitives while the store
	// runs in local-only mode.
	ErrLocalOnly = errors.New("store is in local-only mode")

	// ErrNoPartition is returned when the partition for a scope is not
	// available.
	ErrNoPartition = errors.New("partition not available")
)

// Options configures the store manager. Remote may be nil; the manager then
// behaves as if the fast availability check failed.
type Options struct {
	DataDir string
	Logger  logging.Logger
	Hooks   events.Hooks
	Remote  remote.Service
}

// Manager brings up and owns the local partitions.
type Manager struct {
	opts Options
	log  logging.Logger

	mu              sync.Mutex
	remoteAvailable bool
	localOnly       bool
	owner           *Partition
	participant     *Partition
}

// DeviceTokenPath is where the device-level sync identity token lives. Its
// presence is the fast, network-free availability check performed at start.
func DeviceTokenPath(dataDir string) string {
	return filepath.Join(dataDir, "device_token")
}

// ReadDeviceToken returns the stored device token, or "" when absent.
func ReadDeviceToken(dataDir string) string {
	b, err := os.ReadFile(DeviceTokenPath(dataDir))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// WriteDeviceToken persists the device token obtained from enrollment.
func WriteDeviceToken(dataDir string, token string) error {
	if err := os.MkdirAll(dataDir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dataDir, err)
	}
	return os.WriteFile(DeviceTokenPath(dataDir), []byte(token), 0o660)
}

// Open resolves account availability and loads the appropriate partitions.
//
// When the fast local check fails, the manager configures a single
// local-only partition with no remote linkage: once the account is
// unavailable the system degrades to pure local persistence rather than
// risking writes against cloud-backed storage that cannot commit.
//
// When remote sync is enabled, the owner and participant partitions load
// concurrently; a load failure on one does not block the other.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewJSONLogger()
	}
	m := &Manager{opts: opts, log: opts.Logger}

	hasToken := opts.Remote != nil && ReadDeviceToken(opts.DataDir) != ""
	if !hasToken {
		p, err := OpenPartition(ctx, filepath.Join(opts.DataDir, "owner.db"))
		if err != nil {
			return nil, fmt.Errorf("open local-only partition: %w", err)
		}
		m.owner = p
		m.localOnly = true
		m.log.Warn(ctx, "remote account unavailable, running local-only")
		return m, nil
	}

	m.remoteAvailable = true

	var owner, participant *Partition
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := OpenPartition(gctx, filepath.Join(opts.DataDir, "owner.db"))
		if err != nil {
			m.log.Error(gctx, "owner partition failed to load", "error", err)
			return nil
		}
		owner = p
		return nil
	})
	g.Go(func() error {
		p, err := OpenPartition(gctx, filepath.Join(opts.DataDir, "participant.db"))
		if err != nil {
			m.log.Error(gctx, "participant partition failed to load", "error", err)
			return nil
		}
		participant = p
		return nil
	})
	_ = g.Wait()

	if owner == nil && participant == nil {
		return nil, errors.New("no local partition could be loaded")
	}

	m.owner = owner
	m.participant = participant
	return m, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.owner != nil {
		err = errors.Join(err, m.owner.Close())
	}
	if m.participant != nil {
		err = errors.Join(err, m.participant.Close())
	}
	return err
}

func (m *Manager) RemoteAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteAvailable
}

func (m *Manager) LocalOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localOnly
}

func (m *Manager) HasOwnerPartition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner != nil
}

func (m *Manager) HasParticipantPartition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participant != nil
}

// PartitionFor resolves the partition for a scope. Scope is resolved once
// per operation by callers and stays fixed for that operation's duration.
func (m *Manager) PartitionFor(scope models.Scope) (*Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch scope {
	case models.ScopeParticipant:
		if m.participant == nil {
			return nil, fmt.Errorf("%w: participant", ErrNoPartition)
		}
		return m.participant, nil
	default:
		if m.owner == nil {
			return nil, fmt.Errorf("%w: owner", ErrNoPartition)
		}
		return m.owner, nil
	}
}

// scopePartition is where the scope selector itself persists: the owner
// partition exists in every mode, including local-only.
func (m *Manager) scopePartition() (*Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil {
		return m.owner, nil
	}
	if m.participant != nil {
		return m.participant, nil
	}
	return nil, ErrNoPartition
}

// CurrentScope returns the persisted scope selector, defaulting to owner.
func (m *Manager) CurrentScope(ctx context.Context) models.Scope {
	p, err := m.scopePartition()
	if err != nil {
		return models.ScopeOwner
	}
	v, err := p.Metadata.Get(ctx, metaScope)
	if err == nil && models.Scope(v) == models.ScopeParticipant {
		return models.ScopeParticipant
	}
	return models.ScopeOwner
}

// ScopePersisted reports whether a scope selector has ever been stored.
// Fresh devices have none; discovery uses this to tell "never chose" from
// "chose owner".
func (m *Manager) ScopePersisted(ctx context.Context) bool {
	p, err := m.scopePartition()
	if err != nil {
		return false
	}
	v, err := p.Metadata.Get(ctx, metaScope)
	return err == nil && len(v) > 0
}

// SetScope persists the scope selector and, for participant scope, the
// participant-zone identity. Switching scope is a deliberate transition.
func (m *Manager) SetScope(ctx context.Context, scope models.Scope, participantZone *models.ZoneID) error {
	p, err := m.scopePartition()
	if err != nil {
		return err
	}
	if err := p.Metadata.Set(ctx, metaScope, []byte(scope)); err != nil {
		return err
	}
	if participantZone != nil {
		if err := p.Metadata.Set(ctx, metaParticipantOwner, []byte(participantZone.Owner)); err != nil {
			return err
		}
		if err := p.Metadata.Set(ctx, metaParticipantName, []byte(participantZone.Name)); err != nil {
			return err
		}
	}
	return nil
}

// ParticipantZone returns the persisted participant-zone identity, or nil
// when the device has never entered participant scope.
func (m *Manager) ParticipantZone(ctx context.Context) *models.ZoneID {
	p, err := m.scopePartition()
	if err != nil {
		return nil
	}
	owner, err := p.Metadata.Get(ctx, metaParticipantOwner)
	if err != nil || len(owner) == 0 {
		return nil
	}
	name, err := p.Metadata.Get(ctx, metaParticipantName)
	if err != nil || len(name) == 0 {
		return nil
	}
	return &models.ZoneID{Owner: string(owner), Name: string(name)}
}

// SaveRecord writes a record to the partition for scope inside a
// transaction; a failure rolls the local transaction back and surfaces.
func (m *Manager) SaveRecord(ctx context.Context, scope models.Scope, rec *models.Record) error {
	p, err := m.PartitionFor(scope)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, p.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		return records.NewSQLiteRepository(tx).Upsert(ctx, rec)
	})
}

// DeleteRecord removes the local copy. The remote deletion is queued by the
// caller afterwards; remote failures never resurrect local state.
func (m *Manager) DeleteRecord(ctx context.Context, scope models.Scope, id string) error {
	p, err := m.PartitionFor(scope)
	if err != nil {
		return err
	}
	return p.Records.DeleteByID(ctx, id)
}

// VerifyAvailability performs the slower, network-dependent verification.
// It may downgrade (never upgrade) availability; a true→false flip while
// local data exists emits the account-unavailable signal.
func (m *Manager) VerifyAvailability(ctx context.Context) {
	m.mu.Lock()
	svc := m.opts.Remote
	wasAvailable := m.remoteAvailable
	m.mu.Unlock()

	if !wasAvailable || svc == nil {
		return
	}

	err := svc.Ping(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, remote.ErrUnavailable) {
		// transient outage, not an account-state problem
		m.log.Warn(ctx, "availability check could not reach service", "error", err)
		return
	}

	m.log.Warn(ctx, "remote account became unavailable", "error", err)

	m.mu.Lock()
	m.remoteAvailable = false
	m.localOnly = true
	hasData := m.owner != nil
	m.mu.Unlock()

	if hasData {
		m.opts.Hooks.EmitAccountUnavailable()
	}
}

// HandleAccountChange re-verifies availability asynchronously on an
// external account-change notification. Never blocks the caller.
func (m *Manager) HandleAccountChange(ctx context.Context) {
	go m.VerifyAvailability(ctx)
}

// Share creates (or fetches the existing) share for the given zone.
func (m *Manager) Share(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	svc, err := m.remoteOrErr()
	if err != nil {
		return nil, err
	}
	return svc.CreateShare(ctx, zone)
}

// FetchShares returns the share for the zone, or nil when it is unshared.
func (m *Manager) FetchShares(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	svc, err := m.remoteOrErr()
	if err != nil {
		return nil, err
	}
	share, err := svc.FetchShare(ctx, zone)
	if errors.Is(err, remote.ErrShareNotFound) {
		return nil, nil
	}
	return share, err
}

// AcceptInvitation redeems a share invitation received out of band and
// switches the device into participant scope. It fails fast when the
// participant partition is not loaded.
func (m *Manager) AcceptInvitation(ctx context.Context, token string) (*models.ZoneID, error) {
	if !m.HasParticipantPartition() {
		return nil, ErrParticipantNotLoaded
	}
	svc, err := m.remoteOrErr()
	if err != nil {
		return nil, err
	}

	zone, err := svc.AcceptInvitation(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if err := m.SetScope(ctx, models.ScopeParticipant, zone); err != nil {
		return nil, err
	}

	m.opts.Hooks.EmitDataChanged()
	return zone, nil
}

func (m *Manager) remoteOrErr() (remote.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localOnly || m.opts.Remote == nil {
		return nil, ErrLocalOnly
	}
	return m.opts.Remote, nil
}
