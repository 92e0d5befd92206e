// Package auth issues and validates device access tokens.
package auth

import (
	"time"

	"github.com/dlukins/caresync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the device identity: the account
// the device belongs to and its device ID.
type Claims struct {
	jwt.RegisteredClaims
	Account  string
	DeviceID string
}

// GenerateToken signs an access token for a device of the given account.
func GenerateToken(account, deviceID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Account:  account,
		DeviceID: deviceID,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates the token and returns its claims.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Account == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
