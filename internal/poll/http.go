package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NewHTTPFetcher returns a FetchFunc that reads the status endpoint of a
// running backend. token is the Bearer token from /api/auth/login.
func NewHTTPFetcher(baseURL, token string, client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return func(ctx context.Context, id string) (*Status, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/api/transcriptions/"+id, nil)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("status request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("status request failed (status %d): %s", resp.StatusCode, string(body))
		}

		var st Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return nil, fmt.Errorf("parse status response: %w", err)
		}
		return &st, nil
	}
}
