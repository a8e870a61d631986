package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the relay's history API on behalf of the CLI.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL
// (e.g. "http://localhost:8001/api/v1/meetings").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Record stores a joined room for the token's user.
func (c *Client) Record(ctx context.Context, roomKey string, ts time.Time) error {
	body, err := json.Marshal(recordRequest{RoomKey: roomKey, Timestamp: ts})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, http.StatusCreated)
	return err
}

// List returns the token user's meetings, newest first.
func (c *Client) List(ctx context.Context) ([]Meeting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}

	data, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return resp.Meetings, nil
}

func (c *Client) do(req *http.Request, want int) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("history API: %s (status %d)", e.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("history API: unexpected status %d", resp.StatusCode)
	}
	return data, nil
}
