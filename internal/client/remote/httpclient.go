package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/netx"
)

// HTTPClient implements Service against the caresyncd HTTP API.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

var _ Service = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the given endpoint, authenticating with
// the device access token.
func NewHTTPClient(baseURL string, accessToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// doJSON performs a request with optional JSON body, decodes a JSON reply
// into out (when non-nil), and returns the response status code. Network
// failures map to ErrUnavailable.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthorized
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func zonePath(zone models.ZoneID) string {
	return "/api/v1/zones/" + url.PathEscape(zone.Owner) + "/" + url.PathEscape(zone.Name)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/ping", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: ping status %d", ErrUnavailable, status)
	}
	return nil
}

func (c *HTTPClient) CreateZone(ctx context.Context, zone models.ZoneID) error {
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/zones", zone, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return ErrZoneExists
	default:
		return fmt.Errorf("create zone: unexpected status %d", status)
	}
}

func (c *HTTPClient) ZoneExists(ctx context.Context, zone models.ZoneID) (bool, error) {
	status, err := c.doJSON(ctx, http.MethodGet, zonePath(zone), nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("zone lookup: unexpected status %d", status)
	}
}

func (c *HTTPClient) ListSharedZones(ctx context.Context) ([]models.ZoneID, error) {
	var reply struct {
		Zones []models.ZoneID `json:"zones"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/zones/shared", nil, &reply)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list shared zones: unexpected status %d", status)
	}
	return reply.Zones, nil
}

func (c *HTTPClient) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	status, err := c.doJSON(ctx, http.MethodPut, "/api/v1/subscriptions/"+url.PathEscape(sub.ID), sub, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("save subscription: unexpected status %d", status)
	}
	return nil
}

func (c *HTTPClient) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/subscriptions/"+url.PathEscape(id), nil, &sub)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &sub, nil
	case http.StatusNotFound:
		return nil, ErrRecordNotFound
	default:
		return nil, fmt.Errorf("get subscription: unexpected status %d", status)
	}
}

func (c *HTTPClient) SaveRecords(ctx context.Context, zone models.ZoneID, records []models.RemoteRecord) ([]SaveResult, error) {
	req := struct {
		Records []models.RemoteRecord `json:"records"`
	}{Records: records}
	var reply struct {
		Failed []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"failed"`
	}

	status, err := c.doJSON(ctx, http.MethodPost, zonePath(zone)+"/records", req, &reply)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrZoneNotFound
	default:
		return nil, fmt.Errorf("save records: unexpected status %d", status)
	}

	var failed []SaveResult
	for _, f := range reply.Failed {
		failed = append(failed, SaveResult{ID: f.ID, Err: fmt.Errorf("save rejected: %s", f.Error)})
	}
	return failed, nil
}

func (c *HTTPClient) DeleteRecord(ctx context.Context, zone models.ZoneID, name string) error {
	status, err := c.doJSON(ctx, http.MethodDelete, zonePath(zone)+"/records/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrRecordNotFound
	default:
		return fmt.Errorf("delete record: unexpected status %d", status)
	}
}

func (c *HTTPClient) QueryRecords(ctx context.Context, zone models.ZoneID, from, to time.Time) ([]models.RemoteRecord, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339Nano))
	q.Set("to", to.UTC().Format(time.RFC3339Nano))

	var reply struct {
		Records []models.RemoteRecord `json:"records"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, zonePath(zone)+"/records?"+q.Encode(), nil, &reply)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return reply.Records, nil
	case http.StatusNotFound:
		return nil, ErrZoneNotFound
	default:
		return nil, fmt.Errorf("query records: unexpected status %d", status)
	}
}

func (c *HTTPClient) Changes(ctx context.Context, zone models.ZoneID, token string) (*models.ChangeSet, error) {
	path := zonePath(zone) + "/changes"
	if token != "" {
		path += "?since=" + url.QueryEscape(token)
	}

	var cs models.ChangeSet
	status, err := c.doJSON(ctx, http.MethodGet, path, nil, &cs)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &cs, nil
	case http.StatusNotFound:
		return nil, ErrZoneNotFound
	case http.StatusGone:
		return nil, ErrChangeTokenExpired
	default:
		return nil, fmt.Errorf("changes: unexpected status %d", status)
	}
}

func (c *HTTPClient) CreateShare(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	var share models.Share
	status, err := c.doJSON(ctx, http.MethodPost, zonePath(zone)+"/share", nil, &share)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return &share, nil
	case http.StatusNotFound:
		return nil, ErrZoneNotFound
	default:
		return nil, fmt.Errorf("create share: unexpected status %d", status)
	}
}

func (c *HTTPClient) FetchShare(ctx context.Context, zone models.ZoneID) (*models.Share, error) {
	var share models.Share
	status, err := c.doJSON(ctx, http.MethodGet, zonePath(zone)+"/share", nil, &share)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &share, nil
	case http.StatusNotFound:
		return nil, ErrShareNotFound
	default:
		return nil, fmt.Errorf("fetch share: unexpected status %d", status)
	}
}

func (c *HTTPClient) Participants(ctx context.Context, zone models.ZoneID) ([]models.Participant, error) {
	var reply struct {
		Participants []models.Participant `json:"participants"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, zonePath(zone)+"/participants", nil, &reply)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return reply.Participants, nil
	case http.StatusNotFound:
		return nil, ErrZoneNotFound
	default:
		return nil, fmt.Errorf("participants: unexpected status %d", status)
	}
}

func (c *HTTPClient) RevokeShare(ctx context.Context, zone models.ZoneID) error {
	status, err := c.doJSON(ctx, http.MethodDelete, zonePath(zone)+"/share", nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("revoke share: unexpected status %d", status)
	}
}

func (c *HTTPClient) AcceptInvitation(ctx context.Context, token string) (*models.ZoneID, error) {
	req := struct {
		Token string `json:"token"`
	}{Token: token}

	var zone models.ZoneID
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/invitations/accept", req, &zone)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &zone, nil
	case http.StatusForbidden, http.StatusNotFound:
		return nil, ErrInvitationInvalid
	default:
		return nil, fmt.Errorf("accept invitation: unexpected status %d", status)
	}
}

// photoURL asks the service for a presigned URL for the record's asset.
func (c *HTTPClient) photoURL(ctx context.Context, zone models.ZoneID, recordID, op string) (string, error) {
	req := struct {
		Op string `json:"op"`
	}{Op: op}
	var reply struct {
		URL string `json:"url"`
	}

	status, err := c.doJSON(ctx, http.MethodPost, zonePath(zone)+"/records/"+url.PathEscape(recordID)+"/photo-urls", req, &reply)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return reply.URL, nil
	case http.StatusNotFound:
		return "", ErrRecordNotFound
	default:
		return "", fmt.Errorf("photo url: unexpected status %d", status)
	}
}

func (c *HTTPClient) UploadPhoto(ctx context.Context, zone models.ZoneID, recordID string, payload []byte) error {
	uploadURL, err := c.photoURL(ctx, zone, recordID, "put")
	if err != nil {
		return err
	}
	if err := netx.UploadToPresignedURL(ctx, uploadURL, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *HTTPClient) DownloadPhoto(ctx context.Context, zone models.ZoneID, recordID string) ([]byte, error) {
	downloadURL, err := c.photoURL(ctx, zone, recordID, "get")
	if err != nil {
		return nil, err
	}
	payload, err := netx.DownloadFromPresignedURL(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return payload, nil
}
