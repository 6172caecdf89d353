// Package admin provides startup helpers for ensuring the configured
// bootstrap admins exist in the database with the admin role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar bootstraps the configured admin records. Admins granted through
// the bot afterwards are left untouched; the bootstrap set only ever adds.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureAdmins upserts each configured admin id with role=admin.
func (r *Registrar) EnsureAdmins(ctx context.Context, adminIDs []int64) error {
	if r == nil || r.users == nil {
		return errors.New("admin registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if len(adminIDs) == 0 {
		return errors.New("at least one admin id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, adminID := range adminIDs {
		if adminID == 0 {
			return errors.New("admin id is required")
		}

		result, err := r.users.UpdateOne(ctx,
			bson.M{"tg_id": adminID},
			bson.M{
				"$set": bson.M{
					"role":       domain.RoleAdmin,
					"updated_at": now,
				},
				"$setOnInsert": bson.M{
					"tg_id":      adminID,
					"full_name":  "",
					"created_at": now,
				},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("ensure admin %d: %w", adminID, err)
		}

		r.logger.WithFields(logging.Fields{
			"event":          "admin_bootstrap",
			"user_id":        adminID,
			"matched_admin":  matchedCount(result),
			"upserted_admin": upsertedCount(result),
		}).Info("ensured bootstrap admin")
	}

	return nil
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
