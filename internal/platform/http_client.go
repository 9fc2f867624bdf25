package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/config"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPClient implements Platform against the platform gateway REST API.
// Every call waits on a shared rate limiter so bursts of creations and
// edits stay under the platform's limits.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.PlatformConfig
	logger     *zap.Logger
	mu         sync.RWMutex
	isHealthy  bool
}

type roomResponse struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	ParentID string   `json:"parent_id"`
	Members  []string `json:"members"`
}

type permissionsResponse struct {
	ManageChannels bool `json:"manage_channels"`
}

type createResponse struct {
	ID string `json:"id"`
}

// NewHTTPClient creates a platform client
func NewHTTPClient(cfg config.PlatformConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid platform base url: %w", err)
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		cfg:        cfg,
		logger:     logger,
		isHealthy:  true,
	}, nil
}

// IsHealthy returns the result of the last health check
func (c *HTTPClient) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHealthy
}

func (c *HTTPClient) setHealthy(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isHealthy = healthy
}

// statusError carries a non-2xx response
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("platform returned %d: %s", e.status, e.body)
}

// do sends one request and decodes a JSON response into out when non-nil
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classify maps transport failures onto the error taxonomy
func (c *HTTPClient) classify(op string, tenantID string, err error) error {
	if err == nil {
		return nil
	}
	se, ok := err.(*statusError)
	if !ok {
		return apperrors.PlatformUnavailable(op, err)
	}
	switch se.status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrRoomNotFound)
	case http.StatusTooManyRequests:
		return apperrors.PlatformRateLimited(op, err)
	case http.StatusForbidden:
		return apperrors.MissingManagePermission(tenantID, err)
	case http.StatusConflict:
		if op == "move_member" {
			return fmt.Errorf("%s: %w", op, ErrMemberNotConnected)
		}
	}
	return apperrors.PlatformUnavailable(op, err)
}

// withRetry retries idempotent reads on connection failures and 5xx responses
func (c *HTTPClient) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := c.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		c.logger.Warn("Platform call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

func isRetryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *HTTPClient) getRoom(ctx context.Context, roomID string) (*roomResponse, error) {
	var room roomResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID), nil, &room)
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *HTTPClient) CanManage(ctx context.Context, tenantID string) (bool, error) {
	var perms permissionsResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/v1/tenants/"+url.PathEscape(tenantID)+"/permissions", nil, &perms)
	})
	if err != nil {
		if se, ok := err.(*statusError); ok && se.status == http.StatusForbidden {
			return false, nil
		}
		return false, c.classify("can_manage", tenantID, err)
	}
	return perms.ManageChannels, nil
}

func (c *HTTPClient) ParentCategory(ctx context.Context, roomID string) (string, error) {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return "", c.classify("parent_category", "", err)
	}
	return room.ParentID, nil
}

// CreateRoom is not retried: a lost response would otherwise create a second room
func (c *HTTPClient) CreateRoom(ctx context.Context, spec RoomSpec) (string, error) {
	var created createResponse
	path := "/v1/tenants/" + url.PathEscape(spec.TenantID) + "/rooms"
	if err := c.do(ctx, http.MethodPost, path, spec, &created); err != nil {
		return "", c.classify("create_room", spec.TenantID, err)
	}
	if created.ID == "" {
		return "", apperrors.PlatformUnavailable("create_room", fmt.Errorf("empty room id in response"))
	}
	return created.ID, nil
}

func (c *HTTPClient) DeleteRoom(ctx context.Context, roomID string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/rooms/"+url.PathEscape(roomID), nil, nil)
	return c.classify("delete_room", "", err)
}

func (c *HTTPClient) MoveMember(ctx context.Context, tenantID, memberID, roomID string) error {
	path := "/v1/tenants/" + url.PathEscape(tenantID) + "/members/" + url.PathEscape(memberID) + "/move"
	err := c.do(ctx, http.MethodPost, path, map[string]string{"room_id": roomID}, nil)
	return c.classify("move_member", tenantID, err)
}

func (c *HTTPClient) Occupancy(ctx context.Context, roomID string) (int, error) {
	members, err := c.Members(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (c *HTTPClient) Members(ctx context.Context, roomID string) ([]string, error) {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return nil, c.classify("members", "", err)
	}
	if room.Members == nil {
		return []string{}, nil
	}
	return room.Members, nil
}

func (c *HTTPClient) SetConnectAllowed(ctx context.Context, tenantID, roomID string, allowed bool) error {
	ow := Overwrite{TargetID: tenantID, TargetKind: TargetTenant}
	if allowed {
		ow.Allow = []Permission{PermConnect}
	} else {
		ow.Deny = []Permission{PermConnect}
	}
	return c.putOverwrite(ctx, tenantID, roomID, ow)
}

func (c *HTTPClient) SetUserLimit(ctx context.Context, roomID string, limit int) error {
	err := c.do(ctx, http.MethodPatch, "/v1/rooms/"+url.PathEscape(roomID), map[string]int{"user_limit": limit}, nil)
	return c.classify("set_user_limit", "", err)
}

func (c *HTTPClient) Rename(ctx context.Context, roomID, name string) error {
	err := c.do(ctx, http.MethodPatch, "/v1/rooms/"+url.PathEscape(roomID), map[string]string{"name": name}, nil)
	return c.classify("rename", "", err)
}

func (c *HTTPClient) GrantOwner(ctx context.Context, roomID, memberID string) error {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return c.classify("grant_owner", "", err)
	}
	return c.putOverwrite(ctx, room.TenantID, roomID, OwnerOverwrites(room.TenantID, memberID)[0])
}

func (c *HTTPClient) RevokeOwner(ctx context.Context, roomID, memberID string) error {
	return c.putOverwrite(ctx, "", roomID, RevokedOwnerOverwrite(memberID))
}

func (c *HTTPClient) KickMember(ctx context.Context, roomID, memberID string) error {
	path := "/v1/rooms/" + url.PathEscape(roomID) + "/members/" + url.PathEscape(memberID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if se, ok := err.(*statusError); ok && se.status == http.StatusConflict {
		return ErrMemberNotConnected
	}
	return c.classify("kick_member", "", err)
}

func (c *HTTPClient) putOverwrite(ctx context.Context, tenantID, roomID string, ow Overwrite) error {
	path := "/v1/rooms/" + url.PathEscape(roomID) + "/overwrites/" + url.PathEscape(ow.TargetID)
	err := c.do(ctx, http.MethodPut, path, ow, nil)
	return c.classify("set_overwrite", tenantID, err)
}

// Ping checks the gateway health endpoint
func (c *HTTPClient) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		c.setHealthy(false)
		return c.classify("ping", "", err)
	}
	c.setHealthy(true)
	return nil
}
