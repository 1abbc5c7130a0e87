// ABOUTME: HTTP client for the CRM REST collaborator
// ABOUTME: Bulk/CRUD entity operations with retry, Retry-After capture, and 401 token clearing
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/models"
)

// TokenProvider supplies the bearer token for each request. An empty token
// means the session is unauthenticated and the call is skipped.
type TokenProvider func(ctx context.Context) (string, error)

// Options configures the client.
type Options struct {
	BaseURL       string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	UserAgent     string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

// Client talks to the CRM backend. It retries transient failures with
// exponential backoff, honors Retry-After on 429 by suppressing subsequent
// calls until the hint elapses, and clears stored credentials on 401.
type Client struct {
	baseURL       string
	tokenProvider TokenProvider
	httpClient    *http.Client
	userAgent     string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration

	mu               sync.Mutex
	rateLimitedUntil time.Time
}

// New creates a client with sensible defaults for anything unset.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	tokenProvider := opts.TokenProvider
	if tokenProvider == nil {
		tokenProvider = func(ctx context.Context) (string, error) {
			token, err := LoadToken()
			if err != nil || token == nil {
				return "", err
			}
			return token.AccessToken, nil
		}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		tokenProvider: tokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
	}
}

// ListEntities bulk-fetches clients and leads. forceRefresh passes a refresh
// hint through to the backend.
func (c *Client) ListEntities(ctx context.Context, forceRefresh bool) ([]map[string]any, error) {
	path := "/v1/entities"
	if forceRefresh {
		path += "?refresh=1"
	}
	return c.doList(ctx, path)
}

// ListOpportunities bulk-fetches opportunities across all clients.
func (c *Client) ListOpportunities(ctx context.Context) ([]map[string]any, error) {
	return c.doList(ctx, "/v1/opportunities")
}

// GetEntity fetches a single client or lead.
func (c *Client) GetEntity(ctx context.Context, t models.EntityType, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, entityPath(t)+"/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEntity creates a client or lead and returns the server's record.
func (c *Client) CreateEntity(ctx context.Context, t models.EntityType, payload map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, entityPath(t), payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEntity replaces a client or lead and returns the server's record.
func (c *Client) UpdateEntity(ctx context.Context, t models.EntityType, id string, payload map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPut, entityPath(t)+"/"+id, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PatchEntity updates a subset of fields and returns the server's echoed
// record, which may be nil when the backend responds with no body.
func (c *Client) PatchEntity(ctx context.Context, t models.EntityType, id string, fields map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPatch, entityPath(t)+"/"+id, fields, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEntity deletes a client or lead. A 404 is surfaced as ErrNotFound;
// callers treat it as already deleted.
func (c *Client) DeleteEntity(ctx context.Context, t models.EntityType, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath(t)+"/"+id, nil, nil)
}

// ToggleStar flips the starred flag on an entity and returns the echoed
// record if the backend provides one.
func (c *Client) ToggleStar(ctx context.Context, t models.EntityType, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, entityPath(t)+"/"+id+"/star", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListGroups fetches all company groups.
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	raw, err := c.doList(ctx, "/v1/groups")
	if err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(raw))
	for _, item := range raw {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var g models.Group
		if err := json.Unmarshal(data, &g); err != nil {
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// CreateGroup creates a company group.
func (c *Client) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	var out models.Group
	if err := c.do(ctx, http.MethodPost, "/v1/groups", group, &out); err != nil {
		return models.Group{}, err
	}
	return out, nil
}

// UpdateGroup updates a company group.
func (c *Client) UpdateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	var out models.Group
	if err := c.do(ctx, http.MethodPut, "/v1/groups/"+group.ID, group, &out); err != nil {
		return models.Group{}, err
	}
	return out, nil
}

// DeleteGroup deletes a company group.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/groups/"+id, nil, nil)
}

// ListGroupMembers fetches the raw member records of a group.
func (c *Client) ListGroupMembers(ctx context.Context, id string) ([]map[string]any, error) {
	return c.doList(ctx, "/v1/groups/"+id+"/members")
}

// AssignGroup assigns an entity to a group.
func (c *Client) AssignGroup(ctx context.Context, entityID, groupID string) error {
	payload := map[string]any{"entityId": entityID}
	return c.do(ctx, http.MethodPost, "/v1/groups/"+groupID+"/members", payload, nil)
}

// ListIndustries fetches the selectable industries.
func (c *Client) ListIndustries(ctx context.Context) ([]models.Industry, error) {
	var out []models.Industry
	if err := c.do(ctx, http.MethodGet, "/v1/industries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateIndustry adds an industry.
func (c *Client) CreateIndustry(ctx context.Context, name string) (models.Industry, error) {
	var out models.Industry
	if err := c.do(ctx, http.MethodPost, "/v1/industries", map[string]any{"name": name}, &out); err != nil {
		return models.Industry{}, err
	}
	return out, nil
}

// DeleteIndustry removes an industry.
func (c *Client) DeleteIndustry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/industries/"+id, nil, nil)
}

// ListExternalAgents fetches the external agents.
func (c *Client) ListExternalAgents(ctx context.Context) ([]models.ExternalAgent, error) {
	var out []models.ExternalAgent
	if err := c.do(ctx, http.MethodGet, "/v1/external-agents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func entityPath(t models.EntityType) string {
	if t == models.TypeLead {
		return "/v1/leads"
	}
	return "/v1/clients"
}

// doList fetches a path and decodes either a bare JSON array or a
// {"data": [...]} wrapper, since the backend has used both.
func (c *Client) doList(ctx context.Context, path string) ([]map[string]any, error) {
	var body json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var wrapper struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil {
		return wrapper.Data, nil
	}
	return nil, fmt.Errorf("unexpected list response shape for %s", path)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return fmt.Errorf("api client is nil")
	}

	c.mu.Lock()
	retryAt := c.rateLimitedUntil
	c.mu.Unlock()
	if time.Now().Before(retryAt) {
		return &RateLimitError{RetryAt: retryAt}
	}

	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("no stored token: %w", ErrUnauthorized)
	}

	var bodyBytes []byte
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	url := c.baseURL + path
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			if err := ClearToken(); err != nil {
				zap.L().Warn("failed to clear stored token", zap.Error(err))
			}
			return ErrUnauthorized

		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound

		case resp.StatusCode == http.StatusConflict:
			return &ConflictError{Message: errorMessage(respBody, resp.StatusCode)}

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAt := time.Now().Add(c.retryDelay(1, resp.Header.Get("Retry-After")))
			c.mu.Lock()
			c.rateLimitedUntil = retryAt
			c.mu.Unlock()
			return &RateLimitError{RetryAt: retryAt}

		case resp.StatusCode >= 500 && resp.StatusCode <= 599 && attempt < c.maxRetries:
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue

		default:
			return &StatusError{Code: resp.StatusCode, Message: errorMessage(respBody, resp.StatusCode)}
		}
	}
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte, status int) string {
	msg := strings.TrimSpace(string(body))
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		for _, key := range []string{"message", "error"} {
			if m, ok := parsed[key].(string); ok && strings.TrimSpace(m) != "" {
				return strings.TrimSpace(m)
			}
		}
	}
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	// Retry-After on 429 may legitimately exceed the backoff cap.
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
