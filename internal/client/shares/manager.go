// Package shares manages the lifecycle of a zone's share: creating the
// invitation, inspecting who accepted it, and revoking access.
package shares

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/client/remote"
	"github.com/dlukins/caresync/internal/logging"
)

type Manager struct {
	svc remote.Service
	log logging.Logger
}

func NewManager(svc remote.Service, log logging.Logger) *Manager {
	return &Manager{svc: svc, log: log}
}

// Create returns the zone's share, creating it when the zone is not yet
// shared. The service keeps a single share per zone, so repeated calls
// return the same invitation token.
func (m *Manager) Create(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	share, err := m.svc.CreateShare(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("create share for %s: %w", zone.String(), err)
	}
	m.log.Info(ctx, "zone shared", "zone", zone.String())
	return share, nil
}

// Fetch returns the zone's share, or nil when the zone is unshared.
func (m *Manager) Fetch(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	share, err := m.svc.FetchShare(ctx, zone)
	if errors.Is(err, remote.ErrShareNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch share for %s: %w", zone.String(), err)
	}
	return share, nil
}

// Participants lists everyone invited to or accepted into the zone.
func (m *Manager) Participants(ctx context.Context, zone models.ZoneID) ([]models.Participant, error) {
	parts, err := m.svc.Participants(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("list participants of %s: %w", zone.String(), err)
	}
	return parts, nil
}

// Revoke stops sharing the zone. Participants lose access on their next
// sync; their local copies are not reached into.
func (m *Manager) Revoke(ctx context.Context, zone models.ZoneID) error {
	err := m.svc.RevokeShare(ctx, zone)
	if errors.Is(err, remote.ErrShareNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke share for %s: %w", zone.String(), err)
	}
	m.log.Info(ctx, "share revoked", "zone", zone.String())
	return nil
}
