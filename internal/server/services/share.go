package services

import (
	"context"
	"errors"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/google/uuid"
)

// ShareService manages a zone's single share and invitation acceptance.
type ShareService struct {
	backend Backend
	log     logging.Logger
}

func NewShareService(backend Backend, log logging.Logger) *ShareService {
	return &ShareService{backend: backend, log: log}
}

func (s *ShareService) requireOwnedZone(ctx context.Context, account string, zone wire.ZoneID) error {
	if zone.Owner != account {
		return common.ErrZoneNotFound
	}
	_, err := s.backend.store().Zones.Get(ctx, zone.Owner, zone.Name)
	return err
}

// Create shares the zone, or returns the existing share. A zone has at most
// one share, so the invitation token is stable across calls.
func (s *ShareService) Create(ctx context.Context, account string, zone wire.ZoneID) (*wire.Share, error) {
	if err := s.requireOwnedZone(ctx, account, zone); err != nil {
		return nil, err
	}

	st := s.backend.store()
	share := &wire.Share{ID: uuid.NewString(), Zone: zone, Token: uuid.NewString()}
	err := st.Shares.Create(ctx, zone.Owner, zone.Name, share)
	if errors.Is(err, common.ErrorConflict) {
		return s.Get(ctx, account, zone)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "zone shared", "zone", zone.String())
	return s.withParticipants(ctx, share)
}

// Get returns the zone's share with its participant list, or
// common.ErrorNotFound when the zone is unshared.
func (s *ShareService) Get(ctx context.Context, account string, zone wire.ZoneID) (*wire.Share, error) {
	if err := s.requireOwnedZone(ctx, account, zone); err != nil {
		return nil, err
	}
	share, err := s.backend.store().Shares.Get(ctx, zone.Owner, zone.Name)
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, share)
}

func (s *ShareService) withParticipants(ctx context.Context, share *wire.Share) (*wire.Share, error) {
	parts, err := s.backend.store().Shares.Participants(ctx, share.Zone.Owner, share.Zone.Name)
	if err != nil {
		return nil, err
	}
	share.Participants = parts
	return share, nil
}

func (s *ShareService) Participants(ctx context.Context, account string, zone wire.ZoneID) ([]wire.Participant, error) {
	if err := s.requireOwnedZone(ctx, account, zone); err != nil {
		return nil, err
	}
	return s.backend.store().Shares.Participants(ctx, zone.Owner, zone.Name)
}

// Revoke unshares the zone and drops its participants. Revoking an
// unshared zone succeeds.
func (s *ShareService) Revoke(ctx context.Context, account string, zone wire.ZoneID) error {
	if err := s.requireOwnedZone(ctx, account, zone); err != nil {
		return err
	}
	if err := s.backend.store().Shares.Delete(ctx, zone.Owner, zone.Name); err != nil {
		return err
	}
	s.log.Info(ctx, "share revoked", "zone", zone.String())
	return nil
}

// Accept redeems an invitation token for account and returns the zone it
// grants. Owners cannot accept their own invitation.
func (s *ShareService) Accept(ctx context.Context, account, token string) (*wire.ZoneID, error) {
	st := s.backend.store()
	zone, _, err := st.Shares.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if zone.Owner == account {
		return nil, common.ErrorUnauthorized
	}
	if err := st.Shares.UpsertParticipant(ctx, zone.Owner, zone.Name, account, wire.ParticipantAccepted); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "invitation accepted", "zone", zone.String(), "account", account)
	return zone, nil
}
