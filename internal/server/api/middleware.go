package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/server/auth"
)

type contextKey string

const (
	accountKey contextKey = "account"
	deviceKey  contextKey = "device"
)

// authenticate validates the bearer device token and stashes the account
// into the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(token, h.jwtSecret)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, claims.Account)
		ctx = context.WithValue(ctx, deviceKey, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFrom(ctx context.Context) string {
	account, _ := ctx.Value(accountKey).(string)
	return account
}

func deviceFrom(ctx context.Context) string {
	device, _ := ctx.Value(deviceKey).(string)
	return device
}
