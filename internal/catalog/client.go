package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"librarium/pkg/domain"
)

// Client queries a Google Books style volumes endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a catalog client. apiKey may be empty; the caller
// decides whether catalog enrichment is enabled at all.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns volumes matching the query. The response is trimmed to the
// fields the inventory listing cares about.
func (c *Client) Search(ctx context.Context, query string) ([]domain.CatalogItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request: unexpected status %s", resp.Status)
	}

	var payload volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog response: %w", err)
	}

	items := make([]domain.CatalogItem, 0, len(payload.Items))
	for _, v := range payload.Items {
		item := domain.CatalogItem{
			Title:       strings.TrimSpace(v.VolumeInfo.Title),
			Description: strings.TrimSpace(v.VolumeInfo.Description),
			Source:      "catalog",
		}
		if item.Title == "" {
			continue
		}
		if len(v.VolumeInfo.Authors) > 0 {
			item.Author = strings.Join(v.VolumeInfo.Authors, ", ")
		}
		items = append(items, item)
	}
	return items, nil
}

type volumesResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title       string   `json:"title"`
			Authors     []string `json:"authors"`
			Description string   `json:"description"`
		} `json:"volumeInfo"`
	} `json:"items"`
}
