package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

// Client talks to the headless scraping service that renders product pages
// and extracts structured metadata.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

// NewClient creates a scraping service client.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			// Rendering a page can take a while.
			Timeout: 60 * time.Second,
		},
		baseURL: baseURL,
		log:     log,
	}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// Scrape fetches product metadata for one URL.
func (c *Client) Scrape(ctx context.Context, pageURL string) (*domain.ScrapedPage, error) {
	payload, err := json.Marshal(scrapeRequest{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scraping service returned status %d: %s", resp.StatusCode, string(body))
	}

	var page domain.ScrapedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if page.Title == "" {
		return nil, fmt.Errorf("scraped page has no title: %s", pageURL)
	}
	return &page, nil
}
