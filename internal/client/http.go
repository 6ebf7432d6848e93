package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// HTTPClient implements RegistryClient using the viewshare HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements RegistryClient.
var _ RegistryClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) FindByOwner(ctx context.Context, ownerUserID string) (*model.Session, error) {
	var s model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/owners/"+url.PathEscape(ownerUserID)+"/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Exists(ctx context.Context, sessionID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, "/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
}

func (c *HTTPClient) Share(ctx context.Context, s *model.Session) (*model.Session, error) {
	body := map[string]any{
		"sessionId":           s.ID,
		"ownerUserId":         s.OwnerUserID,
		"mode":                s.Mode,
		"visibility":          s.Visibility,
		"urlEncodedViewState": s.ViewState,
	}
	var out model.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	body := map[string]any{
		"ownerUserId":         s.OwnerUserID,
		"mode":                s.Mode,
		"visibility":          s.Visibility,
		"urlEncodedViewState": s.ViewState,
	}
	var out model.Session
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/sessions/"+url.PathEscape(s.ID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Clear(ctx context.Context, ownerUserID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/owners/"+url.PathEscape(ownerUserID)+"/session", nil, nil)
}

func (c *HTTPClient) Transfer(ctx context.Context, sessionID, newOwner string) (*model.Session, error) {
	var out model.Session
	body := map[string]string{"ownerUserId": newOwner}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/transfer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns sessions matching filter.
func (c *HTTPClient) List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	q := url.Values{}
	if filter.OwnerUserID != "" {
		q.Set("owner", filter.OwnerUserID)
	}
	if filter.Visibility != "" {
		q.Set("visibility", string(filter.Visibility))
	}
	if filter.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", filter.Limit))
	}

	path := "/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Sessions []*model.Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 204 No Content means success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
