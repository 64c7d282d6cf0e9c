package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reviewpilot/crm-api/domain"
)

// RefreshTokenRepository implements domain.RefreshTokenRepository.
type RefreshTokenRepository struct {
	tokens *mongo.Collection
}

// NewRefreshTokenRepository creates the repository and ensures its indexes.
// The TTL index lets MongoDB sweep long-expired records; validity is still
// checked at use time, so the lazy sweep is purely housekeeping.
func NewRefreshTokenRepository(ctx context.Context, db *mongo.Database) (*RefreshTokenRepository, error) {
	repo := &RefreshTokenRepository{tokens: db.Collection(RefreshTokensCollection)}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := repo.tokens.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("creating refresh token indexes: %w", err)
	}
	return repo, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	if _, err := r.tokens.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("user_id", token.UserID).Msg("inserting refresh token failed")
		return err
	}
	return nil
}

func (r *RefreshTokenRepository) GetByValue(ctx context.Context, value string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.tokens.FindOne(ctx, bson.M{"token": value}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// ConsumeIfActive flips revoked from false to true in a single conditional
// update. When two rotations race on the same value, the document matches
// only once, so exactly one caller wins and the other gets ErrNotFound.
func (r *RefreshTokenRepository) ConsumeIfActive(ctx context.Context, value string) (*domain.RefreshToken, error) {
	filter := bson.M{"token": value, "revoked": false}
	update := bson.M{"$set": bson.M{"revoked": true}}

	var token domain.RefreshToken
	err := r.tokens.FindOneAndUpdate(ctx, filter, update).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	token.Revoked = true
	return &token, nil
}

// Revoke marks the token revoked. Unknown or already-revoked values are fine.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, value string) error {
	_, err := r.tokens.UpdateOne(ctx,
		bson.M{"token": value},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		log.Error().Err(err).Msg("revoking refresh token failed")
		return err
	}
	return nil
}

// RevokeAllForUser drops every session the user holds, e.g. on password
// change or account deletion.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.tokens.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("revoking user refresh tokens failed")
		return 0, err
	}
	return result.DeletedCount, nil
}
