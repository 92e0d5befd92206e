package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/dbx"
	"github.com/dlukins/caresync/internal/logging"
	sc "github.com/dlukins/caresync/internal/server/config"
	"github.com/dlukins/caresync/internal/server/services"
	"github.com/dlukins/caresync/internal/server/storage"
	"github.com/dlukins/caresync/internal/timex"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	srv *httptest.Server
	mem *storage.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mem := storage.NewMemoryStore()
	backend := services.Backend{
		Run:    dbx.PlainRunner{},
		Stores: func(dbx.DBTX) *storage.Store { return mem.Bundle() },
	}
	log := logging.NewJSONLogger()
	secret := []byte("api-test-secret")
	cfg := &sc.Config{
		JWTSecret:      string(secret),
		TokenTTL:       timex.Duration{Duration: time.Hour},
		S3BaseEndpoint: "http://localhost:9000",
		S3Region:       "us-east-1",
		S3Bucket:       "caresync-assets",
		S3AccessKey:    "test",
		S3SecretKey:    "test",
	}

	handler := NewHandler(
		services.NewSyncService(backend, log),
		services.NewShareService(backend, log),
		services.NewUserService(backend, secret, time.Hour, log),
		services.NewAssetService(backend, cfg, log),
		secret,
		log,
	)

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, mem: mem}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+"/api/v1"+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (a *testAPI) enroll(t *testing.T, account, secret string) string {
	t.Helper()
	resp, raw := a.do(t, http.MethodPost, "/devices/enroll", "", map[string]string{
		"account": account, "secret": secret, "deviceName": "test-device",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func zonePath(zone wire.ZoneID) string {
	return fmt.Sprintf("/zones/%s/%s", zone.Owner, zone.Name)
}

func TestPingNeedsNoAuth(t *testing.T) {
	api := newTestAPI(t)
	resp, _ := api.do(t, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPost, "/zones", "", wire.ZoneID{Owner: "a", Name: "b"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/zones", "garbage-token", wire.ZoneID{Owner: "a", Name: "b"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEnrollWrongSecretRejected(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "alice", "s3cret")

	resp, _ := api.do(t, http.MethodPost, "/devices/enroll", "", map[string]string{
		"account": "alice", "secret": "wrong", "deviceName": "d",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshIssuesNewToken(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")

	resp, raw := api.do(t, http.MethodPost, "/devices/refresh", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.Token)

	// The refreshed token authenticates like the original.
	resp, _ = api.do(t, http.MethodPost, "/zones", out.Token,
		wire.ZoneID{Owner: "alice", Name: common.ZoneName})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/devices/refresh", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestZoneLifecycle(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	bob := api.enroll(t, "bob", "hunter2")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}

	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Creating someone else's zone is forbidden.
	resp, _ = api.do(t, http.MethodPost, "/zones", bob, zone)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, zonePath(zone)+"/", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Invisible zones answer 404, not 403, so probing leaks nothing.
	resp, _ = api.do(t, http.MethodGet, zonePath(zone)+"/", bob, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordsAndChanges(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}
	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	at := time.Now().UTC().Truncate(time.Second)
	rec := wire.RemoteRecord{
		Name: wire.RemoteName("r1"), ID: "r1", Zone: zone,
		Kind: string(wire.KindEvent), Time: at, ModifiedAt: at,
		Fields: map[string]string{"symptom": "rash"},
	}

	resp, raw := api.do(t, http.MethodPost, zonePath(zone)+"/records", alice,
		map[string]any{"records": []wire.RemoteRecord{rec}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saveOut struct {
		Failed []services.SaveFailure `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(raw, &saveOut))
	require.Empty(t, saveOut.Failed)

	q := fmt.Sprintf("/records?from=%s&to=%s",
		at.Add(-time.Hour).Format(time.RFC3339Nano),
		at.Add(time.Hour).Format(time.RFC3339Nano))
	resp, raw = api.do(t, http.MethodGet, zonePath(zone)+q, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queryOut struct {
		Records []wire.RemoteRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(raw, &queryOut))
	require.Len(t, queryOut.Records, 1)
	require.Equal(t, "rash", queryOut.Records[0].Fields["symptom"])

	resp, raw = api.do(t, http.MethodGet, zonePath(zone)+"/changes", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cs wire.ChangeSet
	require.NoError(t, json.Unmarshal(raw, &cs))
	require.Len(t, cs.Changed, 1)
	require.NotEmpty(t, cs.Token)

	resp, _ = api.do(t, http.MethodDelete, zonePath(zone)+"/records/"+rec.Name, alice, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = api.do(t, http.MethodGet, zonePath(zone)+"/changes?since="+cs.Token, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cs2 wire.ChangeSet
	require.NoError(t, json.Unmarshal(raw, &cs2))
	require.Equal(t, []string{"r1"}, cs2.DeletedIDs)

	resp, _ = api.do(t, http.MethodDelete, zonePath(zone)+"/records/rec-missing", alice, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChangesGoneAfterCompaction(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}
	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, raw := api.do(t, http.MethodGet, zonePath(zone)+"/changes", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cs wire.ChangeSet
	require.NoError(t, json.Unmarshal(raw, &cs))

	api.mem.SetMinSeq(zone.Owner, zone.Name, 100)
	resp, _ = api.do(t, http.MethodGet, zonePath(zone)+"/changes?since="+cs.Token, alice, nil)
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestShareFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	bob := api.enroll(t, "bob", "hunter2")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}
	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Unshared zone has no share yet.
	resp, _ = api.do(t, http.MethodGet, zonePath(zone)+"/share", alice, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw := api.do(t, http.MethodPost, zonePath(zone)+"/share", alice, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var share wire.Share
	require.NoError(t, json.Unmarshal(raw, &share))
	require.NotEmpty(t, share.Token)

	resp, raw = api.do(t, http.MethodPost, "/invitations/accept", bob,
		map[string]string{"token": share.Token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted wire.ZoneID
	require.NoError(t, json.Unmarshal(raw, &accepted))
	require.Equal(t, zone, accepted)

	resp, raw = api.do(t, http.MethodGet, "/zones/shared", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var shared struct {
		Zones []wire.ZoneID `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(raw, &shared))
	require.Equal(t, []wire.ZoneID{zone}, shared.Zones)

	resp, raw = api.do(t, http.MethodGet, zonePath(zone)+"/participants", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var parts struct {
		Participants []wire.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(raw, &parts))
	require.Len(t, parts.Participants, 1)
	require.Equal(t, "bob", parts.Participants[0].User)

	// Owner redeeming their own invitation is forbidden.
	resp, _ = api.do(t, http.MethodPost, "/invitations/accept", alice,
		map[string]string{"token": share.Token})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, zonePath(zone)+"/share", alice, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, zonePath(zone)+"/", bob, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscriptionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}
	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sub := wire.Subscription{Zone: zone, Silent: true}
	resp, _ = api.do(t, http.MethodPut, "/subscriptions/sub-alice-care", alice, sub)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := api.do(t, http.MethodGet, "/subscriptions/sub-alice-care", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got wire.Subscription
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "sub-alice-care", got.ID)
	require.True(t, got.Silent)

	resp, _ = api.do(t, http.MethodGet, "/subscriptions/unknown", alice, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotoURLEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.enroll(t, "alice", "s3cret")
	zone := wire.ZoneID{Owner: "alice", Name: common.ZoneName}
	resp, _ := api.do(t, http.MethodPost, "/zones", alice, zone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	at := time.Now().UTC()
	rec := wire.RemoteRecord{
		Name: wire.RemoteName("r1"), ID: "r1", Zone: zone,
		Kind: string(wire.KindEvent), Time: at, ModifiedAt: at, HasPhoto: true,
	}
	resp, _ = api.do(t, http.MethodPost, zonePath(zone)+"/records", alice,
		map[string]any{"records": []wire.RemoteRecord{rec}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := api.do(t, http.MethodPost, zonePath(zone)+"/records/r1/photo-urls", alice,
		map[string]string{"op": "put"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Contains(t, out.URL, "caresync-assets")
	require.Contains(t, out.URL, "zones/alice/"+common.ZoneName+"/r1")

	// Unknown operation is a client error.
	resp, _ = api.do(t, http.MethodPost, zonePath(zone)+"/records/r1/photo-urls", alice,
		map[string]string{"op": "frobnicate"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No asset URLs for records that do not exist.
	resp, _ = api.do(t, http.MethodPost, zonePath(zone)+"/records/ghost/photo-urls", alice,
		map[string]string{"op": "get"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
