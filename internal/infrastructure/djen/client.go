package djen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const pageSize = 100

// Client queries the national judicial gazette API for a party's
// publications of the current day.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

var _ ports.RecordSource = (*Client)(nil)

// NewClient wires an HTTP client; a nil client gets a 60s timeout default.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

type searchResponse struct {
	Status string                `json:"status"`
	Count  int                   `json:"count"`
	Items  []normalize.RawRecord `json:"items"`
}

// Search pages through today's publications mentioning the party name.
// Pagination stops at a short page, an empty page or the page cap. With a
// court filter set, publications of other courts are dropped.
func (c *Client) Search(ctx context.Context, name, courtFilter string, maxPages int) ([]normalize.RawRecord, error) {
	today := c.now().Format("2006-01-02")
	courtFilter = strings.ToUpper(strings.TrimSpace(courtFilter))

	var results []normalize.RawRecord
	for page := 1; page <= maxPages; page++ {
		items, err := c.fetchPage(ctx, name, today, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		for _, item := range items {
			if courtFilter != "" && strings.ToUpper(item.CourtAcronym) != courtFilter {
				continue
			}
			results = append(results, item)
		}
		if len(items) < pageSize {
			break
		}
	}
	return results, nil
}

func (c *Client) fetchPage(ctx context.Context, name, day string, page int) ([]normalize.RawRecord, error) {
	query := url.Values{}
	query.Set("nomeParte", name)
	query.Set("dataDisponibilizacaoInicio", day)
	query.Set("dataDisponibilizacaoFim", day)
	query.Set("pagina", strconv.Itoa(page))
	query.Set("itensPorPagina", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request publications: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gazette returned %s", resp.Status)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Items, nil
}
