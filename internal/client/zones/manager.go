// Package zones establishes the remote containers the client syncs with:
// the owner's private journal zone, its change-notification subscription,
// and discovery of zones shared in by other owners.
package zones

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/logging"
)

// Manager creates zones and subscriptions idempotently. Every operation is
// safe to repeat on each start.
type Manager struct {
	svc remote.Service
	log logging.Logger
}

func NewManager(svc remote.Service, log logging.Logger) *Manager {
	return &Manager{svc: svc, log: log}
}

// OwnerZone is the well-known private zone for the given account.
func OwnerZone(owner string) models.ZoneID {
	return models.ZoneID{Owner: owner, Name: common.ZoneName}
}

// EnsureZone creates the zone if it does not exist. An already-exists
// answer from the service is success, so two devices racing to create the
// same zone both converge.
func (m *Manager) EnsureZone(ctx context.Context, zone models.ZoneID) error {
	err := m.svc.CreateZone(ctx, zone)
	if err == nil {
		m.log.Info(ctx, "created zone", "zone", zone.String())
		return nil
	}
	if errors.Is(err, remote.ErrZoneExists) {
		return nil
	}
	return fmt.Errorf("ensure zone %s: %w", zone.String(), err)
}

// subscriptionID is deterministic per zone and scope so repeated
// registration on any device converges on a single subscription, while an
// account watching the same zone as owner and as participant keeps two.
func subscriptionID(zone models.ZoneID, scope models.Scope) string {
	return "sub-" + string(scope) + "-" + zone.Owner + "-" + zone.Name
}

// EnsureSubscription registers a silent change-notification subscription
// for the zone unless one is already in place.
func (m *Manager) EnsureSubscription(ctx context.Context, zone models.ZoneID, scope models.Scope) error {
	id := subscriptionID(zone, scope)

	if _, err := m.svc.GetSubscription(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, remote.ErrRecordNotFound) {
		return fmt.Errorf("check subscription %s: %w", id, err)
	}

	sub := models.Subscription{ID: id, Zone: zone, Silent: true}
	if err := m.svc.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription %s: %w", id, err)
	}
	m.log.Info(ctx, "registered subscription", "zone", zone.String())
	return nil
}

// DiscoverParticipantZone scans zones shared with this account and returns
// the first one carrying the well-known journal name, or nil when the
// account participates in nothing.
func (m *Manager) DiscoverParticipantZone(ctx context.Context) (*models.ZoneID, error) {
	shared, err := m.svc.ListSharedZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shared zones: %w", err)
	}
	for _, z := range shared {
		if z.Name == common.ZoneName {
			zone := z
			return &zone, nil
		}
	}
	return nil, nil
}

// AllSharedZones returns every journal zone shared with this account.
// Owner-scope reads union these with the private zone.
func (m *Manager) AllSharedZones(ctx context.Context) ([]models.ZoneID, error) {
	shared, err := m.svc.ListSharedZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shared zones: %w", err)
	}
	var out []models.ZoneID
	for _, z := range shared {
		if z.Name == common.ZoneName {
			out = append(out, z)
		}
	}
	return out, nil
}
