package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reviewpilot/crm-api/domain"
)

// ReviewRepository implements domain.ReviewRepository.
type ReviewRepository struct {
	reviews *mongo.Collection
}

func NewReviewRepository(ctx context.Context, db *mongo.Database) (*ReviewRepository, error) {
	repo := &ReviewRepository{reviews: db.Collection(ReviewsCollection)}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := repo.reviews.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("creating review indexes: %w", err)
	}
	return repo, nil
}

func (r *ReviewRepository) CreateMany(ctx context.Context, reviews []*domain.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]any, 0, len(reviews))
	for _, review := range reviews {
		if review.ID == "" {
			review.ID = uuid.NewString()
		}
		if review.CreatedAt.IsZero() {
			review.CreatedAt = now
		}
		docs = append(docs, review)
	}

	_, err := r.reviews.InsertMany(ctx, docs)
	return err
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Review, error) {
	cursor, err := r.reviews.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reviews []*domain.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *ReviewRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.reviews.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
