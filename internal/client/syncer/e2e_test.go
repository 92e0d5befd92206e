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
	"github.com/stretchr/testify/require"
)

// TestLocalOnlyToTwoDeviceSync walks the full lifecycle: a device starts
// with no account and journals locally, the account appears, the backlog
// migrates, and a second device of the same user converges through an
// incremental pull.
func TestLocalOnlyToTwoDeviceSync(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	log := logging.NewJSONLogger()
	dirA := t.TempDir()

	// phase 1: device A runs without an account and journals locally
	stA, err := store.Open(ctx, store.Options{DataDir: dirA, Logger: log})
	require.NoError(t, err)
	require.True(t, stA.LocalOnly())

	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	rec := eventRecord("wheeze", at)
	require.NoError(t, stA.SaveRecord(ctx, models.ScopeOwner, rec))
	require.NoError(t, stA.Close())

	// phase 2: the account appears; device A restarts enrolled over the
	// same data dir and migrates its backlog
	require.NoError(t, store.WriteDeviceToken(dirA, "tok-a"))
	svcA := backend.Session("alice")
	stA, err = store.Open(ctx, store.Options{DataDir: dirA, Logger: log, Remote: svcA})
	require.NoError(t, err)
	defer stA.Close()
	require.True(t, stA.RemoteAvailable())

	zmA := zones.NewManager(svcA, log)
	require.NoError(t, zmA.EnsureZone(ctx, zones.OwnerZone("alice")))

	syncA := New(Options{
		Owner: "alice", Service: svcA, Store: stA, Zones: zmA,
		Retry: retry.New(svcA, nil, log), Logger: log, PhotosDir: t.TempDir(),
	})
	require.NoError(t, syncA.MigrateLocalOnly(ctx))

	// phase 3: device B of the same user pulls incrementally and must
	// see the record journaled before the account existed
	dirB := t.TempDir()
	require.NoError(t, store.WriteDeviceToken(dirB, "tok-b"))
	svcB := backend.Session("alice")
	stB, err := store.Open(ctx, store.Options{DataDir: dirB, Logger: log, Remote: svcB})
	require.NoError(t, err)
	defer stB.Close()

	var dataChanged bool
	syncB := New(Options{
		Owner: "alice", Service: svcB, Store: stB, Zones: zones.NewManager(svcB, log),
		Retry: retry.New(svcB, nil, log), Logger: log, PhotosDir: t.TempDir(),
		Hooks: events.Hooks{DataChanged: func() { dataChanged = true }},
	})
	require.NoError(t, syncB.IncrementalSync(ctx, models.ScopeOwner))
	require.True(t, dataChanged)

	pB, err := stB.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	got, err := pB.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "wheeze", got.Event.Symptom)
	require.Equal(t, rec.Time.UTC(), got.Time.UTC())

	// phase 4: a reload on device B reads the same record straight from
	// its partition, without touching the service
	require.NoError(t, stB.Close())
	stB2, err := store.Open(ctx, store.Options{DataDir: dirB, Logger: log, Remote: svcB})
	require.NoError(t, err)
	defer stB2.Close()
	pB2, err := stB2.PartitionFor(models.ScopeOwner)
	require.NoError(t, err)
	again, err := pB2.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, again.ID)
}
