package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"memecoin-radar/internal/backoff"
)

// getJSON performs a GET and decodes the body. 429 maps to ErrRateLimited
// and 4xx to a permanent error so the retry loop gives up immediately.
func getJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return backoff.Permanent{Err: fmt.Errorf("%w: %s", ErrRateLimited, req.URL.Host)}
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent{Err: fmt.Errorf("http 404 from %s", req.URL.Host)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent{Err: fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.Host)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.Host)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Host, err)
	}
	return nil
}
