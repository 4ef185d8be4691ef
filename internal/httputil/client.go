package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrStatus is wrapped by Client errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads JSON from a running daemon.
type Client struct {
	BaseURL string
	HTTP    Doer
}

// NewClient returns a client for the daemon at base, e.g.
// "http://localhost:31950". A nil doer uses an http.Client with a 10s timeout.
func NewClient(base string, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(base, "/"), HTTP: doer}
}

// GetJSON fetches path with query and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Get fetches path with query and returns the raw body. Error responses are
// returned as errors wrapping ErrStatus, with the server's message.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorBody
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	return body, nil
}
