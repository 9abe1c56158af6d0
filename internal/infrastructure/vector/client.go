package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"CourtWatch/internal/ports"
)

// Client talks to an external semantic-search service that holds record
// embeddings and scores them against a query text.
type Client struct {
	endpoint   string
	apiKey     string
	collection string
	http       *http.Client
}

var _ ports.VectorSearch = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey, collection string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		collection: collection,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Rerank scores the given record IDs against the query. Only IDs scoring at
// or above the threshold come back; the caller treats absence as filtered.
func (c *Client) Rerank(ctx context.Context, ids []int64, query string, threshold float64) (map[int64]float64, error) {
	payload := map[string]any{
		"collection": c.collection,
		"query":      query,
		"ids":        ids,
		"threshold":  threshold,
	}

	var resp struct {
		Results []struct {
			ID    int64   `json:"id"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/rerank", payload, &resp); err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(resp.Results))
	for _, r := range resp.Results {
		if r.Score >= threshold {
			scores[r.ID] = r.Score
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
