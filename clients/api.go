package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tejiriaustin/fimtracker/models"
)

// Client talks to a running daemon's query API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient accepts either a full base URL or a listen address such as
// ":8080", which is resolved against localhost.
func NewClient(addr string) *Client {
	return &Client{
		baseURL: BaseURL(addr),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("API returned non-OK status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// Health returns the status reported by the daemon.
func (c *Client) Health(ctx context.Context) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

func (c *Client) FileHistory(ctx context.Context, path string) ([]models.FileView, error) {
	var trail []models.FileView
	if err := c.get(ctx, "/files/history", url.Values{"path": {path}}, &trail); err != nil {
		return nil, err
	}
	return trail, nil
}

func (c *Client) Events(ctx context.Context, since time.Time, limit int) ([]models.Event, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}

	var events []models.Event
	if err := c.get(ctx, "/events", query, &events); err != nil {
		return nil, err
	}
	return events, nil
}
