package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/crm-api/domain"
	apperrors "github.com/reviewpilot/crm-api/errors"
)

const (
	defaultMaxReviews = 50
	scrapeCap         = 500
)

var googleMapsDomains = []string{
	"maps.google.com",
	"www.google.com/maps",
	"google.com/maps",
}

// ReviewService triggers review scraping and serves stored reviews. The
// scraping call is a plain request/response to the collaborator; no state
// machine lives here.
type ReviewService struct {
	reviews domain.ReviewRepository
	scraper domain.ReviewScraper
}

func NewReviewService(reviews domain.ReviewRepository, scraper domain.ReviewScraper) *ReviewService {
	return &ReviewService{reviews: reviews, scraper: scraper}
}

// Scrape fetches reviews for the listing URL, stores them under the user and
// returns the stored records.
func (s *ReviewService) Scrape(ctx context.Context, userID, listingURL string, maxReviews int) ([]*domain.Review, error) {
	if !validGoogleMapsURL(listingURL) {
		return nil, apperrors.ValidationFailed("Please provide a valid Google Maps business URL.").
			WithDetail("field", "url")
	}
	if maxReviews <= 0 {
		maxReviews = defaultMaxReviews
	}
	if maxReviews > scrapeCap {
		maxReviews = scrapeCap
	}

	scraped, err := s.scraper.Scrape(ctx, listingURL, maxReviews)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("review scrape failed")
		return nil, apperrors.Internal(err)
	}

	reviews := make([]*domain.Review, 0, len(scraped))
	for _, item := range scraped {
		reviews = append(reviews, &domain.Review{
			UserID:    userID,
			Author:    item.Author,
			Rating:    item.Rating,
			Text:      item.Text,
			Date:      item.Date,
			SourceURL: listingURL,
		})
	}
	if err := s.reviews.CreateMany(ctx, reviews); err != nil {
		return nil, apperrors.Internal(err)
	}

	log.Info().Str("user_id", userID).Int("count", len(reviews)).Msg("reviews scraped")
	return reviews, nil
}

// List returns the user's stored reviews, newest first.
func (s *ReviewService) List(ctx context.Context, userID string) ([]*domain.Review, error) {
	reviews, err := s.reviews.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return reviews, nil
}

func validGoogleMapsURL(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, domainPrefix := range googleMapsDomains {
		if strings.Contains(lowered, domainPrefix) {
			return true
		}
	}
	return false
}
