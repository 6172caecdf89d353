package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sequenceCollection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// Sequence issues monotonically increasing integer ids backed by the counters
// collection. Each call is a single atomic findOneAndUpdate, so concurrent
// callers never observe the same value.
type Sequence struct {
	counters sequenceCollection
}

// NewSequence constructs a Sequence over the counters collection.
func NewSequence(counters sequenceCollection) *Sequence {
	return &Sequence{counters: counters}
}

// Next returns the next id for the named sequence, starting at 1.
func (s *Sequence) Next(ctx context.Context, name string) (int64, error) {
	if s == nil || s.counters == nil {
		return 0, errors.New("sequence is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if name == "" {
		return 0, errors.New("sequence name is required")
	}

	result := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	if result == nil {
		return 0, errors.New("sequence update returned no result")
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", name, err)
	}

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := result.Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode sequence %s: %w", name, err)
	}

	return doc.Seq, nil
}
