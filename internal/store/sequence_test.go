package store

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeSequenceCollection struct {
	t       *testing.T
	seq     int64
	err     error
	filters []bson.M
}

func (f *fakeSequenceCollection) FindOneAndUpdate(_ context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	f.t.Helper()

	filterDoc, ok := filter.(bson.M)
	if !ok {
		f.t.Fatalf("expected bson.M filter, got %T", filter)
	}
	f.filters = append(f.filters, filterDoc)

	updateDoc, ok := update.(bson.M)
	if !ok {
		f.t.Fatalf("expected bson.M update, got %T", update)
	}
	inc, ok := updateDoc["$inc"].(bson.M)
	if !ok {
		f.t.Fatalf("expected $inc update, got %v", updateDoc)
	}
	if inc["seq"] != int64(1) {
		f.t.Fatalf("expected seq to advance by 1, got %v", inc["seq"])
	}

	if len(opts) != 1 {
		f.t.Fatalf("expected one options struct, got %d", len(opts))
	}
	if opts[0].Upsert == nil || !*opts[0].Upsert {
		f.t.Fatalf("expected upsert option")
	}
	if opts[0].ReturnDocument == nil || *opts[0].ReturnDocument != options.After {
		f.t.Fatalf("expected ReturnDocument(After) option")
	}

	if f.err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.err, nil)
	}

	f.seq++
	return mongo.NewSingleResultFromDocument(bson.D{{Key: "_id", Value: filterDoc["_id"]}, {Key: "seq", Value: f.seq}}, nil, nil)
}

func TestSequenceNextIssuesIncreasingIDs(t *testing.T) {
	coll := &fakeSequenceCollection{t: t}
	sequence := NewSequence(coll)

	first, err := sequence.Next(context.Background(), "cars")
	if err != nil {
		t.Fatalf("expected first id, got error: %v", err)
	}
	second, err := sequence.Next(context.Background(), "cars")
	if err != nil {
		t.Fatalf("expected second id, got error: %v", err)
	}

	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}

	if len(coll.filters) != 2 {
		t.Fatalf("expected 2 filter documents, got %d", len(coll.filters))
	}
	for _, filter := range coll.filters {
		if filter["_id"] != "cars" {
			t.Fatalf("expected filter on sequence name, got %v", filter)
		}
	}
}

func TestSequenceNextKeepsNamesIsolated(t *testing.T) {
	coll := &fakeSequenceCollection{t: t}
	sequence := NewSequence(coll)

	if _, err := sequence.Next(context.Background(), "cars"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sequence.Next(context.Background(), "services"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if coll.filters[0]["_id"] != "cars" || coll.filters[1]["_id"] != "services" {
		t.Fatalf("expected per-name filters, got %v", coll.filters)
	}
}

func TestSequenceNextPropagatesErrors(t *testing.T) {
	errUpdate := errors.New("update failed")
	sequence := NewSequence(&fakeSequenceCollection{t: t, err: errUpdate})

	if _, err := sequence.Next(context.Background(), "cars"); err == nil {
		t.Fatalf("expected error from findOneAndUpdate")
	} else if !errors.Is(err, errUpdate) {
		t.Fatalf("expected error to wrap update failure, got %v", err)
	}
}

func TestSequenceNextValidatesInputs(t *testing.T) {
	sequence := NewSequence(&fakeSequenceCollection{t: t})

	if _, err := sequence.Next(nil, "cars"); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := sequence.Next(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty sequence name")
	}

	var nilSequence *Sequence
	if _, err := nilSequence.Next(context.Background(), "cars"); err == nil {
		t.Fatalf("expected error for nil sequence")
	}
}
