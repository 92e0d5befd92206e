package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/dlukins/caresync/internal/client/events"
	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/client/retry"
	"github.com/dlukins/caresync/internal/client/store"
	"github.com/dlukins/caresync/internal/client/zones"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// device bundles everything one simulated device runs.
type device struct {
	store *store.Manager
	sync  *Coordinator
	retry *retry.Coordinator
	hooks *events.Hooks
}

// newDevice brings up a device for user against the shared backend.
// enrolled=false simulates a device with no account: local-only mode.
func newDevice(t *testing.T, backend *remote.Memory, user string, enrolled bool) *device {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	if enrolled {
		require.NoError(t, store.WriteDeviceToken(dir, "tok-"+uuid.NewString()))
	}

	svc := backend.Session(user)
	log := logging.NewJSONLogger()
	hooks := &events.Hooks{}

	st, err := store.Open(ctx, store.Options{
		DataDir: dir, Remote: svc, Logger: log, Hooks: *hooks,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	zm := zones.NewManager(svc, log)
	if enrolled {
		require.NoError(t, zm.EnsureZone(ctx, zones.OwnerZone(user)))
	}

	photosDir := t.TempDir()
	rc := retry.New(svc, func(id string) ([]byte, error) {
		return nil, nil
	}, log)

	c := New(Options{
		Owner:     user,
		Service:   svc,
		Store:     st,
		Zones:     zm,
		Retry:     rc,
		Hooks:     *hooks,
		Logger:    log,
		PhotosDir: photosDir,
	})
	// hooks is shared by pointer so tests can install callbacks after
	// construction; re-point the coordinator's copy
	c.hooks = events.Hooks{
		DataChanged:        func() { hooks.EmitDataChanged() },
		AccountUnavailable: func() { hooks.EmitAccountUnavailable() },
	}
	return &device{store: st, sync: c, retry: rc, hooks: hooks}
}

func eventRecord(symptom string, at time.Time) *models.Record {
	return &models.Record{
		ID:         uuid.NewString(),
		Kind:       models.KindEvent,
		Time:       at,
		ModifiedAt: at,
		Event:      &models.EventDetails{Symptom: symptom, Severity: 1},
	}
}

func TestSave_PushesToRemote(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := eventRecord("cough", at)
	require.NoError(t, d.sync.Save(ctx, models.ScopeOwner, rec))

	// landed locally
	p, err := d.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	got, err := p.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "cough", got.Event.Symptom)

	// and remotely
	rrs, err := backend.Session("alice").QueryRecords(ctx,
		zones.OwnerZone("alice"), at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	require.Equal(t, rec.ID, rrs[0].ID)
}

func TestSave_RemoteFailureQueuesAndKeepsLocal(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	backend.SetUnavailable(true)
	rec := eventRecord("rash", time.Now().UTC())
	require.NoError(t, d.sync.Save(ctx, models.ScopeOwner, rec))

	p, err := d.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	_, err = p.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)

	saves, _, _ := d.retry.PendingCounts()
	require.Equal(t, 1, saves)

	// service recovers: a drain lands the queued record
	backend.SetUnavailable(false)
	d.retry.RetryPending(ctx)
	saves, _, _ = d.retry.PendingCounts()
	require.Zero(t, saves)
}

func TestDelete_UnknownRemoteIsSuccess(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	rec := eventRecord("fever", time.Now().UTC())
	p, err := d.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	require.NoError(t, p.Records.Upsert(ctx, rec))

	// never pushed remotely, so the remote delete sees an unknown key
	require.NoError(t, d.sync.Delete(ctx, models.ScopeOwner, rec.ID))

	_, deletes, _ := d.retry.PendingCounts()
	require.Zero(t, deletes)
}

func TestFetch_OwnerScopeUnionsSharedZones(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	// bob owns a journal and shares it with alice
	bob := newDevice(t, backend, "bob", true)
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	bobRec := eventRecord("sneeze", at)
	require.NoError(t, bob.sync.Save(ctx, models.ScopeOwner, bobRec))
	share, err := backend.Session("bob").CreateShare(ctx, zones.OwnerZone("bob"))
	require.NoError(t, err)

	alice := newDevice(t, backend, "alice", true)
	aliceRec := eventRecord("cough", at.Add(time.Minute))
	require.NoError(t, alice.sync.Save(ctx, models.ScopeOwner, aliceRec))

	_, err = backend.Session("alice").AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	got, err := alice.sync.Fetch(ctx, models.ScopeOwner, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	// ascending by time: bob's record first
	require.Equal(t, bobRec.ID, got[0].ID)
	require.Equal(t, aliceRec.ID, got[1].ID)
}

func TestFetch_ParticipantScopeReadsOnlyParticipantZone(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	owner := newDevice(t, backend, "alice", true)
	at := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	ownerRec := eventRecord("headache", at)
	require.NoError(t, owner.sync.Save(ctx, models.ScopeOwner, ownerRec))
	share, err := backend.Session("alice").CreateShare(ctx, zones.OwnerZone("alice"))
	require.NoError(t, err)

	viewer := newDevice(t, backend, "bob", true)
	// bob also keeps a private journal that must stay invisible here
	require.NoError(t, viewer.sync.Save(ctx, models.ScopeOwner, eventRecord("private", at)))

	_, err = viewer.store.AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	got, err := viewer.sync.Fetch(ctx, models.ScopeParticipant, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ownerRec.ID, got[0].ID)
}

// blockingService parks Changes until released, to hold a sync pass open.
type blockingService struct {
	remote.Service
	enter   chan struct{}
	release chan struct{}
}

func (b *blockingService) Changes(ctx context.Context, zone models.ZoneID, token string) (*models.ChangeSet, error) {
	b.enter <- struct{}{}
	<-b.release
	return b.Service.Changes(ctx, zone, token)
}

func TestIncrementalSync_RejectsConcurrentPass(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	blocker := &blockingService{
		Service: backend.Session("alice"),
		enter:   make(chan struct{}),
		release: make(chan struct{}),
	}
	d.sync.svc = blocker

	done := make(chan error, 1)
	go func() { done <- d.sync.IncrementalSync(ctx, models.ScopeOwner) }()

	<-blocker.enter
	require.ErrorIs(t, d.sync.IncrementalSync(ctx, models.ScopeOwner), ErrSyncInProgress)

	close(blocker.release)
	require.NoError(t, <-done)

	// the guard released: a fresh pass is accepted again
	d.sync.svc = backend.Session("alice")
	require.NoError(t, d.sync.IncrementalSync(ctx, models.ScopeOwner))
}

func TestIncrementalSync_AppliesDeltaAndPersistsToken(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	writer := newDevice(t, backend, "alice", true)
	reader := newDevice(t, backend, "alice", true)

	at := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	rec := eventRecord("chills", at)
	require.NoError(t, writer.sync.Save(ctx, models.ScopeOwner, rec))

	fired := 0
	reader.hooks.DataChanged = func() { fired++ }

	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.Equal(t, 1, fired)

	p, err := reader.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	got, err := p.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "chills", got.Event.Symptom)

	token := p.ChangeToken(ctx, zones.OwnerZone("alice"))
	require.NotEmpty(t, token)

	// nothing new: no signal, token unchanged
	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.Equal(t, 1, fired)
	require.Equal(t, token, p.ChangeToken(ctx, zones.OwnerZone("alice")))

	// a deletion propagates too
	require.NoError(t, writer.sync.Delete(ctx, models.ScopeOwner, rec.ID))
	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.Equal(t, 2, fired)
	_, err = p.Records.GetByID(ctx, rec.ID)
	require.Error(t, err)
}

func TestIncrementalSync_RecoversFromExpiredToken(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	writer := newDevice(t, backend, "alice", true)
	reader := newDevice(t, backend, "alice", true)

	at := time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC)
	require.NoError(t, writer.sync.Save(ctx, models.ScopeOwner, eventRecord("a", at)))
	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))

	rec := eventRecord("b", at.Add(time.Minute))
	require.NoError(t, writer.sync.Save(ctx, models.ScopeOwner, rec))
	backend.ExpireTokens(zones.OwnerZone("alice"))

	// the stale token triggers a transparent full re-pull
	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))

	p, err := reader.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	got, err := p.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "b", got.Event.Symptom)
	require.NotEmpty(t, p.ChangeToken(ctx, zones.OwnerZone("alice")))
}

func TestMigrateLocalOnly_Idempotent(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	at := time.Date(2026, 3, 6, 6, 0, 0, 0, time.UTC)
	p, err := d.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Records.Upsert(ctx, eventRecord("offline", at.Add(time.Duration(i)*time.Minute))))
	}

	require.NoError(t, d.sync.MigrateLocalOnly(ctx))
	require.True(t, p.MigrationDone(ctx))

	rrs, err := backend.Session("alice").QueryRecords(ctx,
		zones.OwnerZone("alice"), at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rrs, 3)

	// replay is a no-op, nothing duplicated
	require.NoError(t, d.sync.MigrateLocalOnly(ctx))
	rrs, err = backend.Session("alice").QueryRecords(ctx,
		zones.OwnerZone("alice"), at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rrs, 3)
}

func TestMigrateLocalOnly_FailureLeavesFlagUnset(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	d := newDevice(t, backend, "alice", true)

	p, err := d.store.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	require.NoError(t, p.Records.Upsert(ctx, eventRecord("offline", time.Now().UTC())))

	backend.SetUnavailable(true)
	require.Error(t, d.sync.MigrateLocalOnly(ctx))
	require.False(t, p.MigrationDone(ctx))

	backend.SetUnavailable(false)
	require.NoError(t, d.sync.MigrateLocalOnly(ctx))
	require.True(t, p.MigrationDone(ctx))
}

func TestPhotos_AttachAndDownload(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	writer := newDevice(t, backend, "alice", true)
	reader := newDevice(t, backend, "alice", true)

	at := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	rec := eventRecord("bite", at)
	require.NoError(t, writer.sync.Save(ctx, models.ScopeOwner, rec))

	payload := []byte("jpeg bytes")
	require.NoError(t, writer.sync.AttachPhoto(ctx, models.ScopeOwner, rec.ID, payload))

	require.NoError(t, reader.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.NoError(t, reader.sync.DownloadMissingPhotos(ctx, models.ScopeOwner))

	got, err := reader.sync.LoadPhoto(rec.ID)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPhotos_DownloadFromSharedZone(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	// bob journals a record with a photo and shares his zone
	bob := newDevice(t, backend, "bob", true)
	at := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	rec := eventRecord("swelling", at)
	require.NoError(t, bob.sync.Save(ctx, models.ScopeOwner, rec))
	payload := []byte("jpeg bytes")
	require.NoError(t, bob.sync.AttachPhoto(ctx, models.ScopeOwner, rec.ID, payload))
	share, err := backend.Session("bob").CreateShare(ctx, zones.OwnerZone("bob"))
	require.NoError(t, err)

	alice := newDevice(t, backend, "alice", true)
	_, err = backend.Session("alice").AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	// the record arrives via the shared zone; its asset lives there too,
	// not in alice's own zone
	require.NoError(t, alice.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.NoError(t, alice.sync.DownloadMissingPhotos(ctx, models.ScopeOwner))

	got, err := alice.sync.LoadPhoto(rec.ID)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// newLocalDevice wires a coordinator exactly as the composition root does
// when no server address is configured: no remote service anywhere.
func newLocalDevice(t *testing.T) *device {
	t.Helper()
	ctx := context.Background()
	log := logging.NewJSONLogger()
	hooks := &events.Hooks{}

	st, err := store.Open(ctx, store.Options{DataDir: t.TempDir(), Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := New(Options{
		Owner:     "alice",
		Store:     st,
		Zones:     zones.NewManager(nil, log),
		Retry:     retry.New(nil, nil, log),
		Logger:    log,
		PhotosDir: t.TempDir(),
	})
	return &device{store: st, sync: c, hooks: hooks}
}

func TestLocalOnly_OperationsStayLocal(t *testing.T) {
	ctx := context.Background()
	d := newLocalDevice(t)
	require.True(t, d.store.LocalOnly())

	at := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	rec := eventRecord("itch", at)
	require.NoError(t, d.sync.Save(ctx, models.ScopeOwner, rec))

	got, err := d.sync.Fetch(ctx, models.ScopeOwner, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0].ID)

	payload := []byte("jpeg bytes")
	require.NoError(t, d.sync.AttachPhoto(ctx, models.ScopeOwner, rec.ID, payload))
	cached, err := d.sync.LoadPhoto(rec.ID)
	require.NoError(t, err)
	require.Equal(t, payload, cached)

	// background passes are quiet no-ops without a remote
	require.NoError(t, d.sync.IncrementalSync(ctx, models.ScopeOwner))
	require.NoError(t, d.sync.DownloadMissingPhotos(ctx, models.ScopeOwner))
	require.NoError(t, d.sync.AdoptSharedZone(ctx))

	require.NoError(t, d.sync.Delete(ctx, models.ScopeOwner, rec.ID))
	got, err = d.sync.Fetch(ctx, models.ScopeOwner, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAdoptSharedZone(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	owner := newDevice(t, backend, "alice", true)
	at := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	require.NoError(t, owner.sync.Save(ctx, models.ScopeOwner, eventRecord("rash", at)))
	share, err := backend.Session("alice").CreateShare(ctx, zones.OwnerZone("alice"))
	require.NoError(t, err)

	// the grant is accepted out of band; bob's device only discovers it
	_, err = backend.Session("bob").AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	d := newDevice(t, backend, "bob", true)
	require.Nil(t, d.store.ParticipantZone(ctx))
	require.False(t, d.store.ScopePersisted(ctx))

	require.NoError(t, d.sync.AdoptSharedZone(ctx))

	pz := d.store.ParticipantZone(ctx)
	require.NotNil(t, pz)
	require.Equal(t, zones.OwnerZone("alice"), *pz)
	// a device that never chose a scope becomes a participant
	require.Equal(t, models.ScopeParticipant, d.store.CurrentScope(ctx))

	got, err := d.sync.Fetch(ctx, models.ScopeParticipant, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAdoptSharedZone_KeepsExplicitScope(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	ownerSvc := backend.Session("alice")
	require.NoError(t, ownerSvc.CreateZone(ctx, zones.OwnerZone("alice")))
	share, err := ownerSvc.CreateShare(ctx, zones.OwnerZone("alice"))
	require.NoError(t, err)
	_, err = backend.Session("bob").AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	d := newDevice(t, backend, "bob", true)
	require.NoError(t, d.store.SetScope(ctx, models.ScopeOwner, nil))

	require.NoError(t, d.sync.AdoptSharedZone(ctx))

	// the zone identity is recorded but the chosen scope stands
	require.NotNil(t, d.store.ParticipantZone(ctx))
	require.Equal(t, models.ScopeOwner, d.store.CurrentScope(ctx))
}
