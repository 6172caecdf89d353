package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// UserRepository persists and retrieves users in MongoDB.
type UserRepository struct {
	collection userCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// GetByID fetches a user by Telegram id. Returns ErrNotFound when the user
// has never been seen.
func (r *UserRepository) GetByID(ctx context.Context, tgID int64) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if tgID == 0 {
		return User{}, errors.New("tg_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"tg_id": tgID})
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// GetRole returns the stored role for the given Telegram id, or ErrNotFound.
func (r *UserRepository) GetRole(ctx context.Context, tgID int64) (string, error) {
	user, err := r.GetByID(ctx, tgID)
	if err != nil {
		return "", err
	}

	return user.Role, nil
}

// SetRole updates the role of an existing user. The tg id is created when
// absent so admins can grant roles to users who have not messaged the bot yet.
func (r *UserRepository) SetRole(ctx context.Context, tgID int64, role string) error {
	if r == nil || r.collection == nil {
		return errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if tgID == 0 {
		return errors.New("tg_id is required")
	}
	if !ValidRole(role) {
		return NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"role":       role,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"tg_id":      tgID,
			"full_name":  "",
			"created_at": now,
		},
	}

	if _, err := r.collection.UpdateOne(ctx,
		bson.M{"tg_id": tgID},
		update,
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("set user role: %w", err)
	}

	return nil
}

// ListByRole returns all users holding the given role.
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{"role": role})
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	return users, nil
}
