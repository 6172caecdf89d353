// Package fleet owns car registration and identifier resolution.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/logging"
)

type carCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type idSequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// CarInput carries the fields collected by the registration flow.
type CarInput struct {
	VIN          string
	Mileage      int64
	Year         int
	OwnerCompany string
	Model        string
	Plate        string
	FuelType     string
}

// Registry resolves and registers fleet cars.
type Registry struct {
	cars     carCollection
	sequence idSequence
	logger   *logrus.Entry
}

// NewRegistry constructs a Registry over the cars collection.
func NewRegistry(cars carCollection, sequence idSequence, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registry{
		cars:     cars,
		sequence: sequence,
		logger:   logger,
	}
}

// Register inserts a new car and returns it with its assigned id. VIN and
// plate are normalized to upper case before insert; a duplicate of either
// yields domain.ErrDuplicate and no row.
func (r *Registry) Register(ctx context.Context, input CarInput) (domain.Car, error) {
	if r == nil || r.cars == nil || r.sequence == nil {
		return domain.Car{}, errors.New("fleet registry is not initialized")
	}
	if ctx == nil {
		return domain.Car{}, errors.New("context is required")
	}

	vin := normalizeIdentifier(input.VIN)
	if vin == "" {
		return domain.Car{}, domain.NewValidationError("vin", "must not be empty")
	}
	plate := normalizeIdentifier(input.Plate)
	if plate == "" {
		return domain.Car{}, domain.NewValidationError("plate", "must not be empty")
	}
	if input.Mileage < 0 {
		return domain.Car{}, domain.NewValidationError("mileage", "must not be negative")
	}

	id, err := r.sequence.Next(ctx, "cars")
	if err != nil {
		return domain.Car{}, fmt.Errorf("allocate car id: %w", err)
	}

	car := domain.Car{
		ID:           id,
		VIN:          vin,
		Mileage:      input.Mileage,
		Year:         input.Year,
		OwnerCompany: input.OwnerCompany,
		Model:        input.Model,
		Plate:        plate,
		FuelType:     input.FuelType,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := r.cars.InsertOne(ctx, car); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Car{}, fmt.Errorf("register car %s: %w", vin, domain.ErrDuplicate)
		}
		return domain.Car{}, fmt.Errorf("insert car: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":  "car_registered",
		"car_id": car.ID,
		"vin":    car.VIN,
	}).Info("registered new car")

	return car, nil
}

// FindByID fetches a car by its surrogate id.
func (r *Registry) FindByID(ctx context.Context, id int64) (domain.Car, error) {
	if r == nil || r.cars == nil {
		return domain.Car{}, errors.New("fleet registry is not initialized")
	}
	if ctx == nil {
		return domain.Car{}, errors.New("context is required")
	}

	return r.decodeOne(r.cars.FindOne(ctx, bson.M{"id": id}))
}

// ResolveByIdentifier resolves free-text input to a car. The identifier is
// trimmed and upper-cased; a purely numeric identifier is tried as an id
// first, then (as for any other input) matched against VIN and plate. An id
// hit wins over a car whose VIN happens to equal the numeric literal.
func (r *Registry) ResolveByIdentifier(ctx context.Context, identifier string) (domain.Car, error) {
	if r == nil || r.cars == nil {
		return domain.Car{}, errors.New("fleet registry is not initialized")
	}
	if ctx == nil {
		return domain.Car{}, errors.New("context is required")
	}

	ident := normalizeIdentifier(identifier)
	if ident == "" {
		return domain.Car{}, domain.ErrNotFound
	}

	if id, err := strconv.ParseInt(ident, 10, 64); err == nil {
		car, err := r.decodeOne(r.cars.FindOne(ctx, bson.M{"id": id}))
		if err == nil {
			return car, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Car{}, err
		}
	}

	return r.decodeOne(r.cars.FindOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"vin": ident},
			bson.M{"plate": ident},
		},
	}))
}

// List returns all registered cars, newest first.
func (r *Registry) List(ctx context.Context) ([]domain.Car, error) {
	if r == nil || r.cars == nil {
		return nil, errors.New("fleet registry is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.cars.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}

	var cars []domain.Car
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}

	return cars, nil
}

func (r *Registry) decodeOne(result *mongo.SingleResult) (domain.Car, error) {
	if result == nil {
		return domain.Car{}, errors.New("find car returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Car{}, domain.ErrNotFound
		}
		return domain.Car{}, fmt.Errorf("find car: %w", err)
	}

	var car domain.Car
	if err := result.Decode(&car); err != nil {
		return domain.Car{}, fmt.Errorf("decode car: %w", err)
	}

	return car, nil
}

func normalizeIdentifier(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
