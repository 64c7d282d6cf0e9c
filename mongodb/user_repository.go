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

// caseInsensitive makes the email index and email lookups compare without
// regard to letter case. The query collation must match the index collation
// for the index to be used.
var caseInsensitive = options.Collation{Locale: "en", Strength: 2}

// UserRepository implements domain.UserRepository.
type UserRepository struct {
	users *mongo.Collection
}

// NewUserRepository creates the repository and ensures its indexes. Unique
// indexes on email, username and google_id are partial, so documents whose
// unique fields were cleared on deletion never collide with live accounts.
func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{users: db.Collection(UsersCollection)}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetCollation(&caseInsensitive).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"google_id": bson.M{"$type": "string"}}),
		},
	}
	if _, err := repo.users.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("creating user indexes: %w", err)
	}
	return repo, nil
}

// Create inserts a new user, assigning an id and timestamps when absent.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := r.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("email", user.Email).Msg("inserting user failed")
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email},
		options.FindOne().SetCollation(&caseInsensitive))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username}, nil)
}

func (r *UserRepository) GetByProviderID(ctx context.Context, providerID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"google_id": providerID}, nil)
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptionsBuilder) (*domain.User, error) {
	var user domain.User
	var err error
	if opts != nil {
		err = r.users.FindOne(ctx, filter, opts).Decode(&user)
	} else {
		err = r.users.FindOne(ctx, filter).Decode(&user)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Update replaces the stored document, refreshing the update timestamp.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("user_id", user.ID).Msg("updating user failed")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete deactivates the account and clears its unique fields in one write,
// so the email, username and provider id are immediately free for reuse.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	update := bson.M{
		"$unset": bson.M{"email": "", "username": "", "google_id": ""},
		"$set":   bson.M{"is_active": false, "updated_at": time.Now().UTC()},
	}
	result, err := r.users.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("deleting user failed")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
