package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	users    countCollection
	cars     countCollection
	services countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users, cars, and
// services collections.
func NewStatsProvider(users, cars, services countCollection) *StatsProvider {
	return &StatsProvider{
		users:    users,
		cars:     cars,
		services: services,
	}
}

// CountUsers returns the number of registered users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountCars returns the number of registered cars.
func (p *StatsProvider) CountCars(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.cars == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.cars.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count cars: %w", err)
	}

	return count, nil
}

// CountOpenTickets returns the number of tickets still awaiting approval or
// mechanic work.
func (p *StatsProvider) CountOpenTickets(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.services == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	filter := bson.M{"status": bson.M{"$in": bson.A{"pending_admin", "approved"}}}

	count, err := p.services.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count open tickets: %w", err)
	}

	return count, nil
}
