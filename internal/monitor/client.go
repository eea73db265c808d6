package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// Client talks to a running voicecanvas API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for addr. A bare host:port gets an http scheme.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		// Submissions wait on the vision model, so the timeout is generous.
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (domain.Status, error) {
	var st domain.Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return domain.Status{}, err
	}
	return st, nil
}

// WaitHealthy polls GET /health until it answers 200 or timeout passes.
func (c *Client) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("monitor: %s not available after %v", c.baseURL, timeout)
		case <-ticker.C:
		}
	}
}

func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear", nil, nil)
}

// SetMic starts or stops the microphone and reports whether it is live.
func (c *Client) SetMic(ctx context.Context, on bool) (bool, error) {
	path := "/mic/stop"
	if on {
		path = "/mic/start"
	}
	var resp struct {
		Active bool `json:"active"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Active, nil
}

func (c *Client) SetProfile(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/profile", map[string]string{"name": name}, nil)
}

// Submit asks the server to describe the canvas with model (empty = server default).
func (c *Client) Submit(ctx context.Context, model string) (domain.SubmissionResult, error) {
	var res domain.SubmissionResult
	if err := c.do(ctx, http.MethodPost, "/submit", map[string]string{"model": model}, &res); err != nil {
		return domain.SubmissionResult{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("monitor: encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("monitor: build %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("monitor: %s %s: %w: %w", method, path, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("monitor: %s %s: %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("monitor: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("monitor: decode %s: %w", path, err)
	}
	return nil
}
