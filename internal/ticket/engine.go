// Package ticket owns the service ticket state machine: creation, approval,
// mechanic assignment, completion, and the queries over ticket history.
package ticket

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

type serviceCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

type idSequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

type carFinder interface {
	FindByID(ctx context.Context, id int64) (domain.Car, error)
}

type directory interface {
	ListByRole(ctx context.Context, role string) ([]domain.User, error)
}

type adminRoster interface {
	AdminIDs(ctx context.Context) ([]int64, error)
}

type notifier interface {
	Notify(targets []int64, text string)
}

// View pairs a ticket with the car it references, for rendering.
type View struct {
	Ticket domain.Ticket
	Car    domain.Car
}

// Engine enforces the ticket state machine. All transitions are single
// conditional updates (filter includes the expected status), so two handlers
// racing on the same ticket cannot both win; the loser gets
// domain.ErrInvalidTransition.
type Engine struct {
	services serviceCollection
	sequence idSequence
	cars     carFinder
	users    directory
	admins   adminRoster
	notifier notifier
	logger   *logrus.Entry
}

// NewEngine constructs the ticket engine.
func NewEngine(services serviceCollection, sequence idSequence, cars carFinder, users directory, admins adminRoster, notifier notifier, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		services: services,
		sequence: sequence,
		cars:     cars,
		users:    users,
		admins:   admins,
		notifier: notifier,
		logger:   logger,
	}
}

// Create opens a ticket in pending_admin for the given car, recording the
// creator identity and role as immutable audit fields.
//
// The returned needsAssignment flag is true when the creator is an admin and
// at least one mechanic exists; the caller should then run the assignment
// sub-flow directly instead of leaving the ticket in the admin queue. In
// every other case the admins are notified that a ticket awaits approval.
func (e *Engine) Create(ctx context.Context, carID, creatorTgID int64, creatorRole, description, desiredAt string) (domain.Ticket, bool, error) {
	if e == nil || e.services == nil || e.sequence == nil || e.cars == nil {
		return domain.Ticket{}, false, errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return domain.Ticket{}, false, errors.New("context is required")
	}
	if creatorTgID == 0 {
		return domain.Ticket{}, false, errors.New("creator tg_id is required")
	}

	if _, err := e.cars.FindByID(ctx, carID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Ticket{}, false, fmt.Errorf("car %d: %w", carID, domain.ErrNotFound)
		}
		return domain.Ticket{}, false, fmt.Errorf("verify car: %w", err)
	}

	id, err := e.sequence.Next(ctx, "services")
	if err != nil {
		return domain.Ticket{}, false, fmt.Errorf("allocate ticket id: %w", err)
	}

	ticket := domain.Ticket{
		ID:            id,
		CarID:         carID,
		CreatedByTgID: creatorTgID,
		CreatedByRole: creatorRole,
		Description:   description,
		DesiredAt:     desiredAt,
		Status:        domain.StatusPendingAdmin,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := e.services.InsertOne(ctx, ticket); err != nil {
		return domain.Ticket{}, false, fmt.Errorf("insert ticket: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"event":     "ticket_created",
		"ticket_id": ticket.ID,
		"car_id":    carID,
		"user_id":   creatorTgID,
	}).Info("created service ticket")

	if creatorRole == domain.RoleAdmin && e.users != nil {
		mechanics, err := e.users.ListByRole(ctx, domain.RoleMechanic)
		if err != nil {
			e.logger.WithField("event", "mechanic_list_failed").WithError(err).Warn("could not list mechanics, falling back to admin queue")
		} else if len(mechanics) > 0 {
			return ticket, true, nil
		}
	}

	e.notifyAdmins(ctx, fmt.Sprintf("🆕 Ticket #%d created, awaiting approval", ticket.ID))

	return ticket, false, nil
}

// Mechanics lists the users holding the mechanic role, for the assignment
// picker.
func (e *Engine) Mechanics(ctx context.Context) ([]domain.User, error) {
	if e == nil || e.users == nil {
		return nil, errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	return e.users.ListByRole(ctx, domain.RoleMechanic)
}

// AssignMechanic records the chosen mechanic (or none) and advances the
// ticket from pending_admin to approved in one conditional update. A ticket
// approved with no mechanic still advances; that policy lives here and
// nowhere else. The chosen mechanic is notified.
func (e *Engine) AssignMechanic(ctx context.Context, ticketID int64, mechanicTgID *int64) error {
	if e == nil || e.services == nil {
		return errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	update := bson.M{"$set": bson.M{
		"mechanic_tg_id": mechanicTgID,
		"status":         domain.StatusApproved,
	}}

	if err := e.transition(ctx, ticketID, domain.StatusPendingAdmin, update); err != nil {
		return err
	}

	fields := logging.Fields{
		"event":     "ticket_assigned",
		"ticket_id": ticketID,
	}
	if mechanicTgID != nil {
		fields["mechanic_id"] = *mechanicTgID
	}
	e.logger.WithFields(fields).Info("assigned ticket")

	if mechanicTgID != nil && e.notifier != nil {
		e.notifier.Notify([]int64{*mechanicTgID}, fmt.Sprintf("🔧 You have been assigned ticket #%d", ticketID))
	}

	return nil
}

// Approve moves a pending ticket to approved and records the acting admin.
func (e *Engine) Approve(ctx context.Context, ticketID, adminTgID int64) error {
	if e == nil || e.services == nil {
		return errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	update := bson.M{"$set": bson.M{
		"status":      domain.StatusApproved,
		"admin_tg_id": adminTgID,
	}}

	if err := e.transition(ctx, ticketID, domain.StatusPendingAdmin, update); err != nil {
		return err
	}

	e.logger.WithFields(logging.Fields{
		"event":     "ticket_approved",
		"ticket_id": ticketID,
		"user_id":   adminTgID,
	}).Info("approved ticket")

	return nil
}

// Reject moves a pending ticket to its rejected terminal status and records
// the acting admin.
func (e *Engine) Reject(ctx context.Context, ticketID, adminTgID int64) error {
	if e == nil || e.services == nil {
		return errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	update := bson.M{"$set": bson.M{
		"status":      domain.StatusRejected,
		"admin_tg_id": adminTgID,
	}}

	if err := e.transition(ctx, ticketID, domain.StatusPendingAdmin, update); err != nil {
		return err
	}

	e.logger.WithFields(logging.Fields{
		"event":     "ticket_rejected",
		"ticket_id": ticketID,
		"user_id":   adminTgID,
	}).Info("rejected ticket")

	return nil
}

// RecordCompletion stamps the result of the work and moves the ticket to its
// completed terminal status. Only the assigned mechanic may complete, and
// only from approved; the completion fields are written together with the
// status in a single conditional update, so they are all-or-nothing and a
// second completion attempt fails with domain.ErrInvalidTransition.
func (e *Engine) RecordCompletion(ctx context.Context, ticketID, mechanicTgID, finalMileage int64, costNet float64, comments string) error {
	if e == nil || e.services == nil {
		return errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if finalMileage < 0 {
		return domain.NewValidationError("final_mileage", "must not be negative")
	}
	if costNet < 0 {
		return domain.NewValidationError("cost_net", "must not be negative")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	filter := bson.M{
		"id":             ticketID,
		"status":         domain.StatusApproved,
		"mechanic_tg_id": mechanicTgID,
	}
	update := bson.M{"$set": bson.M{
		"status":        domain.StatusCompleted,
		"final_mileage": finalMileage,
		"cost_net":      costNet,
		"comments":      comments,
		"completed_at":  now,
	}}

	result, err := e.services.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("complete ticket %d: %w", ticketID, err)
	}
	if result == nil || result.MatchedCount == 0 {
		return fmt.Errorf("ticket %d: %w", ticketID, domain.ErrInvalidTransition)
	}

	e.logger.WithFields(logging.Fields{
		"event":     "ticket_completed",
		"ticket_id": ticketID,
		"user_id":   mechanicTgID,
	}).Info("completed ticket")

	e.notifyAdmins(ctx, fmt.Sprintf("✅ Ticket #%d completed", ticketID))

	return nil
}

// ListPending returns tickets awaiting admin action or mechanic work
// (pending_admin and approved), oldest first.
func (e *Engine) ListPending(ctx context.Context) ([]View, error) {
	filter := bson.M{"status": bson.M{"$in": bson.A{domain.StatusPendingAdmin, domain.StatusApproved}}}
	sort := bson.D{{Key: "created_at", Value: 1}}

	return e.query(ctx, filter, sort)
}

// ListForMechanic returns the approved tickets assigned to the mechanic,
// ordered by requested date.
func (e *Engine) ListForMechanic(ctx context.Context, mechanicTgID int64) ([]View, error) {
	filter := bson.M{
		"mechanic_tg_id": mechanicTgID,
		"status":         domain.StatusApproved,
	}
	sort := bson.D{{Key: "desired_at", Value: 1}}

	return e.query(ctx, filter, sort)
}

// ListHistory returns completed tickets, newest completion first. A nil
// mechanic id returns the full history; otherwise the history is scoped to
// that mechanic.
func (e *Engine) ListHistory(ctx context.Context, mechanicTgID *int64) ([]View, error) {
	filter := bson.M{"status": domain.StatusCompleted}
	if mechanicTgID != nil {
		filter["mechanic_tg_id"] = *mechanicTgID
	}
	sort := bson.D{{Key: "completed_at", Value: -1}}

	return e.query(ctx, filter, sort)
}

// SumCompletedCost sums cost_net over completed tickets whose completion time
// falls in [from, to], inclusive. Returns 0 for an empty range.
func (e *Engine) SumCompletedCost(ctx context.Context, from, to time.Time) (float64, error) {
	if e == nil || e.services == nil {
		return 0, errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status": domain.StatusCompleted,
			"completed_at": bson.M{
				"$gte": from,
				"$lte": to,
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$cost_net"},
		}}},
	}

	cursor, err := e.services.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("sum completed cost: %w", err)
	}

	var rows []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode cost sum: %w", err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	return rows[0].Total, nil
}

// transition applies a conditional single-document update and maps a missed
// match to domain.ErrInvalidTransition.
func (e *Engine) transition(ctx context.Context, ticketID int64, expectedStatus string, update bson.M) error {
	result, err := e.services.UpdateOne(ctx, bson.M{"id": ticketID, "status": expectedStatus}, update)
	if err != nil {
		return fmt.Errorf("update ticket %d: %w", ticketID, err)
	}
	if result == nil || result.MatchedCount == 0 {
		return fmt.Errorf("ticket %d: %w", ticketID, domain.ErrInvalidTransition)
	}

	return nil
}

func (e *Engine) query(ctx context.Context, filter bson.M, sort bson.D) ([]View, error) {
	if e == nil || e.services == nil || e.cars == nil {
		return nil, errors.New("ticket engine is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := e.services.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}

	var tickets []domain.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}

	views := make([]View, 0, len(tickets))
	for _, t := range tickets {
		car, err := e.cars.FindByID(ctx, t.CarID)
		if err != nil {
			return nil, fmt.Errorf("load car %d for ticket %d: %w", t.CarID, t.ID, err)
		}
		views = append(views, View{Ticket: t, Car: car})
	}

	return views, nil
}

func (e *Engine) notifyAdmins(ctx context.Context, text string) {
	if e.admins == nil || e.notifier == nil {
		return
	}

	ids, err := e.admins.AdminIDs(ctx)
	if err != nil {
		e.logger.WithField("event", "admin_roster_failed").WithError(err).Warn("could not resolve admin recipients")
		return
	}

	e.notifier.Notify(ids, text)
}
