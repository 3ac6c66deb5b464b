// Package panel is the HTTP client for the VPN appliance control API.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx reply from the panel. Status codes below 500 are
// permanent; 5xx and transport errors are worth retrying.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s (status: %d)", e.Body, e.Status)
}

func (e *APIError) Temporary() bool {
	return e.Status >= 500
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint, idempotencyKey string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	url := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) CreatePeer(ctx context.Context, req CreatePeerRequest) (*PeerResponse, error) {
	resp, err := c.doRequest(ctx, "POST", "/peers", req.IdempotencyKey, req)
	if err != nil {
		return nil, err
	}

	var wrapped APIResponse
	if err := json.Unmarshal(resp, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &wrapped.Response, nil
}

func (c *Client) DeletePeer(ctx context.Context, remoteID string) error {
	endpoint := fmt.Sprintf("/peers/%s", url.PathEscape(remoteID))
	_, err := c.doRequest(ctx, "DELETE", endpoint, "", nil)
	return err
}

func (c *Client) ListPeers(ctx context.Context, userID string) ([]PeerResponse, error) {
	endpoint := fmt.Sprintf("/users/%s/peers", url.PathEscape(userID))
	resp, err := c.doRequest(ctx, "GET", endpoint, "", nil)
	if err != nil {
		return nil, err
	}

	var wrapped APIListResponse
	if err := json.Unmarshal(resp, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return wrapped.Response, nil
}
