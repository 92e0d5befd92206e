package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/go-chi/chi/v5"
)

func zoneFrom(r *http.Request) wire.ZoneID {
	return wire.ZoneID{
		Owner: chi.URLParam(r, "owner"),
		Name:  chi.URLParam(r, "name"),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			h.log.Error(context.Background(), "response encoding failed", "error", err)
		}
	}
}

// writeError maps domain errors onto the API's status contract.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrZoneNotFound), errors.Is(err, common.ErrorNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, common.ErrZoneExists), errors.Is(err, common.ErrorConflict):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, common.ErrChangeTokenExpired):
		w.WriteHeader(http.StatusGone)
	case errors.Is(err, common.ErrorUnauthorized):
		w.WriteHeader(http.StatusForbidden)
	default:
		h.log.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account    string `json:"account"`
		Secret     string `json:"secret"`
		DeviceName string `json:"deviceName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" || req.Secret == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	token, err := h.users.Enroll(r.Context(), req.Account, req.Secret, req.DeviceName)
	if errors.Is(err, common.ErrorUnauthorized) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.users.Refresh(r.Context(), accountFrom(r.Context()), deviceFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) createZone(w http.ResponseWriter, r *http.Request) {
	var zone wire.ZoneID
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.sync.CreateZone(r.Context(), accountFrom(r.Context()), zone); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) getZone(w http.ResponseWriter, r *http.Request) {
	zone := zoneFrom(r)
	visible, err := h.sync.ZoneVisible(r.Context(), accountFrom(r.Context()), zone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !visible {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, zone)
}

func (h *Handler) listSharedZones(w http.ResponseWriter, r *http.Request) {
	shared, err := h.sync.SharedZones(r.Context(), accountFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"zones": shared})
}

func (h *Handler) saveRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []wire.RemoteRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	failed, err := h.sync.SaveRecords(r.Context(), accountFrom(r.Context()), zoneFrom(r), req.Records)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"failed": failed})
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	err := h.sync.DeleteRecord(r.Context(), accountFrom(r.Context()), zoneFrom(r), chi.URLParam(r, "recName"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) queryRecords(w http.ResponseWriter, r *http.Request) {
	from, err1 := time.Parse(time.RFC3339Nano, r.URL.Query().Get("from"))
	to, err2 := time.Parse(time.RFC3339Nano, r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	records, err := h.sync.QueryRecords(r.Context(), accountFrom(r.Context()), zoneFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) changes(w http.ResponseWriter, r *http.Request) {
	cs, err := h.sync.Changes(r.Context(), accountFrom(r.Context()), zoneFrom(r), r.URL.Query().Get("since"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) createShare(w http.ResponseWriter, r *http.Request) {
	share, err := h.shares.Create(r.Context(), accountFrom(r.Context()), zoneFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, share)
}

func (h *Handler) getShare(w http.ResponseWriter, r *http.Request) {
	share, err := h.shares.Get(r.Context(), accountFrom(r.Context()), zoneFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, share)
}

func (h *Handler) revokeShare(w http.ResponseWriter, r *http.Request) {
	if err := h.shares.Revoke(r.Context(), accountFrom(r.Context()), zoneFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) participants(w http.ResponseWriter, r *http.Request) {
	parts, err := h.shares.Participants(r.Context(), accountFrom(r.Context()), zoneFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"participants": parts})
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	zone, err := h.shares.Accept(r.Context(), accountFrom(r.Context()), req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, zone)
}

func (h *Handler) saveSubscription(w http.ResponseWriter, r *http.Request) {
	var sub wire.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sub.ID = chi.URLParam(r, "id")

	if err := h.sync.SaveSubscription(r.Context(), accountFrom(r.Context()), sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.sync.GetSubscription(r.Context(), accountFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) photoURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Op string `json:"op"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	zone := zoneFrom(r)
	recordID := chi.URLParam(r, "recordID")
	account := accountFrom(r.Context())

	visible, err := h.sync.ZoneVisible(r.Context(), account, zone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !visible {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var assetURL string
	switch req.Op {
	case "put":
		assetURL, err = h.assets.PresignPut(r.Context(), zone, recordID)
	case "get":
		assetURL, err = h.assets.PresignGet(r.Context(), zone, recordID)
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": assetURL})
}
