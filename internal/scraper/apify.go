// Package scraper calls the hosted Apify actor that scrapes Google Maps
// reviews. The integration is a single synchronous run-and-fetch call; all
// state lives on the Apify side.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reviewpilot/crm-api/domain"
)

const (
	defaultBaseURL = "https://api.apify.com"
	defaultActor   = "compass~google-maps-reviews-scraper"
)

// Client runs the review-scraping actor synchronously and returns the
// dataset items as normalized reviews.
type Client struct {
	httpClient *http.Client
	baseURL    string
	actor      string
	token      string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithActor selects a different actor id.
func WithActor(actor string) Option {
	return func(c *Client) { c.actor = actor }
}

// NewClient creates a scraping client authenticated by the API token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    defaultBaseURL,
		actor:      defaultActor,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runInput struct {
	StartURLs  []startURL `json:"startUrls"`
	MaxReviews int        `json:"maxReviews"`
	Language   string     `json:"language"`
}

type startURL struct {
	URL string `json:"url"`
}

type datasetItem struct {
	AuthorName      string  `json:"authorName"`
	Name            string  `json:"name"`
	Stars           float64 `json:"stars"`
	Text            string  `json:"text"`
	PublishedAtDate string  `json:"publishedAtDate"`
}

// Scrape runs the actor against one listing URL and returns up to maxReviews
// reviews. A run that produces no dataset items is not an error; the caller
// decides how to treat an empty result.
func (c *Client) Scrape(ctx context.Context, listingURL string, maxReviews int) ([]domain.ScrapedReview, error) {
	input := runInput{
		StartURLs:  []startURL{{URL: listingURL}},
		MaxReviews: maxReviews,
		Language:   "en",
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, c.actor, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("running scrape actor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scrape actor returned status %d: %s", resp.StatusCode, detail)
	}

	var items []datasetItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding actor dataset: %w", err)
	}

	reviews := make([]domain.ScrapedReview, 0, len(items))
	for _, item := range items {
		author := item.AuthorName
		if author == "" {
			author = item.Name
		}
		reviews = append(reviews, domain.ScrapedReview{
			Author: author,
			Rating: int(item.Stars),
			Text:   item.Text,
			Date:   item.PublishedAtDate,
		})
	}
	return reviews, nil
}
