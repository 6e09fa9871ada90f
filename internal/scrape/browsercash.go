package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"memecoin-radar/internal/backoff"
)

// DefaultBrowserCashBaseURL is the consumer API endpoint.
const DefaultBrowserCashBaseURL = "https://browser-api.browser.cash/v1/consumer"

// BrowserCashConfig configures the remote browser client.
type BrowserCashConfig struct {
	APIKey  string
	BaseURL string
	// ActiveTimeout bounds the wait for a new session to become active.
	ActiveTimeout time.Duration
	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration
}

// BrowserCashClient implements PageFetcher over the Browser Cash consumer
// API. Each client owns exactly one remote browser session.
type BrowserCashClient struct {
	cfg       BrowserCashConfig
	client    *http.Client
	sessionID string
}

// NewBrowserCashFactory returns a factory that starts a fresh session per
// source task.
func NewBrowserCashFactory(cfg BrowserCashConfig) FetcherFactory {
	return FetcherFunc(func(ctx context.Context) (PageFetcher, error) {
		return NewBrowserCashClient(ctx, cfg)
	})
}

// NewBrowserCashClient starts a browser session and waits for it to
// become active.
func NewBrowserCashClient(ctx context.Context, cfg BrowserCashConfig) (*BrowserCashClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("browser cash api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBrowserCashBaseURL
	}
	if cfg.ActiveTimeout == 0 {
		cfg.ActiveTimeout = 20 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	c := &BrowserCashClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}

	if err := c.startSession(ctx); err != nil {
		return nil, err
	}
	if err := c.waitForActive(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type sessionResponse struct {
	ID      string `json:"id"`
	Session struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"session"`
}

func (c *BrowserCashClient) startSession(ctx context.Context) error {
	var resp sessionResponse
	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		return c.post(ctx, "/session", map[string]any{}, &resp)
	})
	if err != nil {
		return fmt.Errorf("start browser session: %w", err)
	}

	c.sessionID = resp.ID
	if c.sessionID == "" {
		c.sessionID = resp.Session.ID
	}
	if c.sessionID == "" {
		return fmt.Errorf("start browser session: no session id in response")
	}
	return nil
}

func (c *BrowserCashClient) waitForActive(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.ActiveTimeout)
	for {
		var resp sessionResponse
		if err := c.get(ctx, "/session?sessionId="+url.QueryEscape(c.sessionID), &resp); err == nil {
			if resp.Session.Status == "active" {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("session %s did not become active within %v", c.sessionID, c.cfg.ActiveTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

// Navigate loads the given URL in the remote browser.
func (c *BrowserCashClient) Navigate(ctx context.Context, pageURL string) error {
	body := map[string]any{"sessionId": c.sessionID, "url": pageURL, "waitTime": 3}
	if err := c.post(ctx, "/session/navigate", body, nil); err != nil {
		return fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	return nil
}

// Evaluate runs the script in the page. Results arrive either raw or
// wrapped in a {"result": ...} envelope depending on the API version.
func (c *BrowserCashClient) Evaluate(ctx context.Context, script string) (any, error) {
	body := map[string]any{"sessionId": c.sessionID, "script": script}
	var raw json.RawMessage
	if err := c.post(ctx, "/session/evaluate", body, &raw); err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode evaluate result: %w", err)
	}
	if m, ok := decoded.(map[string]any); ok {
		if result, ok := m["result"]; ok {
			return result, nil
		}
	}
	return decoded, nil
}

// Close stops the remote session. Safe to call more than once.
func (c *BrowserCashClient) Close() error {
	if c.sessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.cfg.BaseURL+"/session?sessionId="+url.QueryEscape(c.sessionID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	resp.Body.Close()
	c.sessionID = ""
	return nil
}

func (c *BrowserCashClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *BrowserCashClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return c.do(req, out)
}

func (c *BrowserCashClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusForbidden {
		// Session limit. Not retryable within this run.
		return backoff.Permanent{Err: fmt.Errorf("http 403 from %s: %s", req.URL.Path, string(data))}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = json.RawMessage(data)
		return nil
	}
	return json.Unmarshal(data, out)
}
