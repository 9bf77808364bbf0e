package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:8650"
	DefaultTimeout = 5 * time.Second
)

// Result is one match returned by the reference-search service.
type Result struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Config holds configuration for the search client.
type Config struct {
	// BaseURL is the service base URL (default: http://localhost:8650).
	BaseURL string

	// Timeout is the per-request timeout (default: 5s).
	Timeout time.Duration
}

// Client queries the reference-search service over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
}

// searchRequest is the service request format.
type searchRequest struct {
	Query string `json:"query"`
}

// searchResponse is the service response format.
type searchResponse struct {
	Results []Result `json:"results"`
}

// NewClient creates a search client for the service at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}
}

// Search runs one query against the service and returns its matches.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search service status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return sr.Results, nil
}
