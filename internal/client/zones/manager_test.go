package zones

import (
	"context"
	"testing"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestEnsureZone_Idempotent(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	m := NewManager(backend.Session("alice"), logging.NewJSONLogger())

	zone := OwnerZone("alice")
	require.NoError(t, m.EnsureZone(ctx, zone))
	require.NoError(t, m.EnsureZone(ctx, zone))

	ok, err := backend.Session("alice").ZoneExists(ctx, zone)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnsureSubscription_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()
	svc := backend.Session("alice")
	m := NewManager(svc, logging.NewJSONLogger())

	zone := OwnerZone("alice")
	require.NoError(t, m.EnsureZone(ctx, zone))
	require.NoError(t, m.EnsureSubscription(ctx, zone, models.ScopeOwner))
	require.NoError(t, m.EnsureSubscription(ctx, zone, models.ScopeOwner))

	sub, err := svc.GetSubscription(ctx, subscriptionID(zone, models.ScopeOwner))
	require.NoError(t, err)
	require.True(t, sub.Silent)
	require.Equal(t, zone, sub.Zone)

	// the same zone watched in a different scope is a distinct
	// subscription
	require.NotEqual(t,
		subscriptionID(zone, models.ScopeOwner),
		subscriptionID(zone, models.ScopeParticipant))
}

func TestDiscoverParticipantZone(t *testing.T) {
	ctx := context.Background()
	backend := remote.NewMemory()

	owner := backend.Session("alice")
	zone := OwnerZone("alice")
	require.NoError(t, owner.CreateZone(ctx, zone))
	share, err := owner.CreateShare(ctx, zone)
	require.NoError(t, err)

	bob := backend.Session("bob")
	m := NewManager(bob, logging.NewJSONLogger())

	// nothing shared in yet
	got, err := m.DiscoverParticipantZone(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = bob.AcceptInvitation(ctx, share.Token)
	require.NoError(t, err)

	got, err = m.DiscoverParticipantZone(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, zone, *got)

	all, err := m.AllSharedZones(ctx)
	require.NoError(t, err)
	require.Equal(t, []models.ZoneID{zone}, all)
}
