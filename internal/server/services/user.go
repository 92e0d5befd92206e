package services

import (
	"context"
	"errors"
	"time"

	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/logging"
	"github.com/dlukins/caresync/internal/server/auth"
	"github.com/dlukins/caresync/internal/server/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService enrolls devices: the first enrollment of an account registers
// it, later ones must present the same secret.
type UserService struct {
	backend  Backend
	secret   []byte
	tokenTTL time.Duration
	log      logging.Logger
}

func NewUserService(backend Backend, jwtSecret []byte, tokenTTL time.Duration, log logging.Logger) *UserService {
	return &UserService{backend: backend, secret: jwtSecret, tokenTTL: tokenTTL, log: log}
}

// Enroll authenticates (or registers) the account and issues a device
// token. A wrong secret yields common.ErrorUnauthorized.
func (s *UserService) Enroll(ctx context.Context, account, secret, deviceName string) (string, error) {
	st := s.backend.store()

	acc, err := st.Accounts.Get(ctx, account)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		acc = &models.Account{Name: account, SecretHash: string(hash)}
		if err := st.Accounts.Create(ctx, acc); err != nil && !errors.Is(err, common.ErrorConflict) {
			return "", err
		}
		s.log.Info(ctx, "account registered", "account", account)
	case err != nil:
		return "", err
	default:
		if bcrypt.CompareHashAndPassword([]byte(acc.SecretHash), []byte(secret)) != nil {
			return "", common.ErrorUnauthorized
		}
	}

	deviceID := uuid.NewString()
	if err := st.Accounts.CreateDevice(ctx, &models.Device{
		ID: deviceID, Account: account, Name: deviceName,
	}); err != nil {
		return "", err
	}

	token, err := auth.GenerateToken(account, deviceID, s.secret, s.tokenTTL)
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "device enrolled", "account", account, "device", deviceID)
	return token, nil
}

// Refresh reissues the device token with a fresh expiry. The caller has
// already proven the current token is valid.
func (s *UserService) Refresh(ctx context.Context, account, deviceID string) (string, error) {
	return auth.GenerateToken(account, deviceID, s.secret, s.tokenTTL)
}
