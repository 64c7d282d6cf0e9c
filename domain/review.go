package domain

import (
	"context"
	"time"
)

// Review is a customer review scraped from a Google Maps business listing.
type Review struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Author    string    `bson:"author" json:"author"`
	Rating    int       `bson:"rating" json:"rating"`
	Text      string    `bson:"text,omitempty" json:"text,omitempty"`
	Date      string    `bson:"date,omitempty" json:"date,omitempty"`
	SourceURL string    `bson:"source_url,omitempty" json:"source_url,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ScrapedReview is a single review as returned by the scraping collaborator,
// before it is attributed to a user and persisted.
type ScrapedReview struct {
	Author string
	Rating int
	Text   string
	Date   string
}

// ReviewScraper fetches reviews for a business listing from a third-party
// scraping API. The call is entirely I/O bound and holds no state.
type ReviewScraper interface {
	Scrape(ctx context.Context, listingURL string, maxReviews int) ([]ScrapedReview, error)
}
