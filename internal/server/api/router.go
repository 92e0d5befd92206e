// Package api exposes the sync service over HTTP/JSON.
package api

import (
	"net/http"

	"github.com/dlukins/caresync/internal/logging"
	"github.com/dlukins/caresync/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	sync      *services.SyncService
	shares    *services.ShareService
	users     *services.UserService
	assets    *services.AssetService
	jwtSecret []byte
	log       logging.Logger
}

func NewHandler(sync *services.SyncService, shares *services.ShareService,
	users *services.UserService, assets *services.AssetService,
	jwtSecret []byte, log logging.Logger) *Handler {
	return &Handler{
		sync:      sync,
		shares:    shares,
		users:     users,
		assets:    assets,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

// Router builds the API route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Post("/devices/enroll", h.enroll)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/devices/refresh", h.refreshToken)
			r.Post("/zones", h.createZone)
			r.Get("/zones/shared", h.listSharedZones)

			r.Route("/zones/{owner}/{name}", func(r chi.Router) {
				r.Get("/", h.getZone)
				r.Post("/records", h.saveRecords)
				r.Get("/records", h.queryRecords)
				r.Delete("/records/{recName}", h.deleteRecord)
				r.Get("/changes", h.changes)
				r.Post("/share", h.createShare)
				r.Get("/share", h.getShare)
				r.Delete("/share", h.revokeShare)
				r.Get("/participants", h.participants)
				r.Post("/records/{recordID}/photo-urls", h.photoURL)
			})

			r.Post("/invitations/accept", h.acceptInvitation)
			r.Put("/subscriptions/{id}", h.saveSubscription)
			r.Get("/subscriptions/{id}", h.getSubscription)
		})
	})

	return r
}
