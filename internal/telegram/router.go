package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/fleet"
	"fleet_service_bot/internal/logging"
	"fleet_service_bot/internal/session"
)

const (
	msgGenericFailure = "Something went wrong, please try again later."
	msgNotApplicable  = "This action is not applicable now."

	costsDateLayout = "2006-01-02"
)

func (c *Client) handleMessage(ctx context.Context, msg *models.Message) {
	uid := userID(msg.From)
	chatID := msg.Chat.ID
	if uid == 0 || chatID == 0 {
		return
	}

	if c.users != nil {
		if _, err := c.users.EnsureUser(ctx, uid, fullName(msg.From)); err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "ensure_user_failed",
				"user_id": uid,
			}).WithError(err).Error("could not ensure user record")
		}
	}

	text := strings.TrimSpace(msg.Text)

	switch {
	case text == "/start":
		c.handleStart(ctx, uid, chatID, msg.From)
	case text == "/cancel":
		c.sessions.Clear(uid)
		c.reply(ctx, chatID, "Cancelled.", nil)
	case text == "/stats":
		c.handleStats(ctx, uid, chatID)
	case strings.HasPrefix(text, "/costs"):
		c.handleCosts(ctx, uid, chatID, text)
	case text == btnCars:
		c.reply(ctx, chatID, "🚗 Cars:", carsKeyboard())
	case text == btnServices:
		c.reply(ctx, chatID, "🔧 Services:", servicesKeyboard())
	case text == btnAdmin:
		if !c.isAdmin(ctx, uid) {
			return
		}
		c.reply(ctx, chatID, "⚙️ Admin:", adminKeyboard())
	case text == btnMyJobs:
		c.handleMyJobs(ctx, uid, chatID)
	default:
		c.continueFlow(ctx, uid, chatID, text)
	}
}

func (c *Client) handleStart(ctx context.Context, uid, chatID int64, from *models.User) {
	role, err := c.policy.ResolveRole(ctx, uid)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "resolve_role_failed",
			"user_id": uid,
		}).WithError(err).Error("could not resolve role")
		c.reply(ctx, chatID, msgGenericFailure, nil)
		return
	}

	greeting := fmt.Sprintf("Hello, %s\nRole: %s", fullName(from), role)
	c.reply(ctx, chatID, greeting, mainKeyboard(role))
}

func (c *Client) handleStats(ctx context.Context, uid, chatID int64) {
	if !c.isAdmin(ctx, uid) || c.stats == nil {
		return
	}

	users, err := c.stats.CountUsers(ctx)
	if err != nil {
		c.replyInternalError(ctx, chatID, "count_users_failed", err)
		return
	}
	cars, err := c.stats.CountCars(ctx)
	if err != nil {
		c.replyInternalError(ctx, chatID, "count_cars_failed", err)
		return
	}
	open, err := c.stats.CountOpenTickets(ctx)
	if err != nil {
		c.replyInternalError(ctx, chatID, "count_open_failed", err)
		return
	}

	c.reply(ctx, chatID, fmt.Sprintf("Users: %d\nCars: %d\nOpen tickets: %d", users, cars, open), nil)
}

func (c *Client) handleCosts(ctx context.Context, uid, chatID int64, text string) {
	if !c.isAdmin(ctx, uid) {
		return
	}

	parts := strings.Fields(text)
	if len(parts) != 3 {
		c.reply(ctx, chatID, "Usage: /costs YYYY-MM-DD YYYY-MM-DD", nil)
		return
	}

	from, err := time.Parse(costsDateLayout, parts[1])
	if err != nil {
		c.reply(ctx, chatID, "Invalid start date, expected YYYY-MM-DD.", nil)
		return
	}
	to, err := time.Parse(costsDateLayout, parts[2])
	if err != nil {
		c.reply(ctx, chatID, "Invalid end date, expected YYYY-MM-DD.", nil)
		return
	}

	// The end date is inclusive: extend it to the last instant of that day.
	to = to.Add(24*time.Hour - time.Millisecond)

	total, err := c.engine.SumCompletedCost(ctx, from, to)
	if err != nil {
		c.replyInternalError(ctx, chatID, "sum_cost_failed", err)
		return
	}

	c.reply(ctx, chatID, fmt.Sprintf("Total net cost %s to %s: %.2f", parts[1], parts[2], total), nil)
}

func (c *Client) handleMyJobs(ctx context.Context, uid, chatID int64) {
	views, err := c.engine.ListForMechanic(ctx, uid)
	if err != nil {
		c.replyInternalError(ctx, chatID, "list_mechanic_failed", err)
		return
	}

	if len(views) == 0 {
		c.reply(ctx, chatID, "No tickets assigned to you.", nil)
		return
	}

	for _, v := range views {
		c.reply(ctx, chatID, renderOpenTicket(v), finishKeyboard(v.Ticket.ID))
	}
}

func (c *Client) handleCallback(ctx context.Context, cq *models.CallbackQuery) {
	c.answerCallback(ctx, cq.ID)

	uid := cq.From.ID
	chatID := messageChatID(cq.Message)
	if uid == 0 || chatID == 0 {
		return
	}

	data := strings.TrimSpace(cq.Data)

	switch {
	case data == cbCarAdd:
		if !c.isAdmin(ctx, uid) {
			return
		}
		c.sessions.Begin(uid, &session.Flow{Kind: session.KindAddCar, AddCar: &session.CarDraft{}})
		c.reply(ctx, chatID, "VIN:", nil)
	case data == cbCarList:
		c.handleCarList(ctx, chatID)
	case data == cbServiceNew:
		c.sessions.Begin(uid, &session.Flow{Kind: session.KindNewTicket, NewTicket: &session.TicketDraft{}})
		c.reply(ctx, chatID, "Car VIN / plate / id:", nil)
	case data == cbServicePending:
		c.handlePending(ctx, uid, chatID)
	case data == cbServiceHistory:
		c.handleHistory(ctx, uid, chatID)
	case data == cbGrantAdmin, data == cbGrantMechanic:
		if !c.isAdmin(ctx, uid) {
			return
		}
		role := domain.RoleAdmin
		if data == cbGrantMechanic {
			role = domain.RoleMechanic
		}
		c.sessions.Begin(uid, &session.Flow{Kind: session.KindGrantRole, GrantRole: &session.RoleDraft{Role: role}})
		c.reply(ctx, chatID, fmt.Sprintf("Telegram user id for role %s:", role), nil)
	case strings.HasPrefix(data, cbAssignPrefix):
		c.handleAssign(ctx, uid, chatID, strings.TrimPrefix(data, cbAssignPrefix))
	case strings.HasPrefix(data, cbApprovePrefix):
		c.handleReview(ctx, uid, chatID, strings.TrimPrefix(data, cbApprovePrefix), true)
	case strings.HasPrefix(data, cbRejectPrefix):
		c.handleReview(ctx, uid, chatID, strings.TrimPrefix(data, cbRejectPrefix), false)
	case strings.HasPrefix(data, cbFinishPrefix):
		c.handleFinishStart(ctx, uid, chatID, strings.TrimPrefix(data, cbFinishPrefix))
	default:
		c.logger.WithFields(logging.Fields{
			"event":   "callback_unknown",
			"user_id": uid,
			"data":    data,
		}).Debug("ignoring unknown callback")
	}
}

func (c *Client) handleCarList(ctx context.Context, chatID int64) {
	cars, err := c.registry.List(ctx)
	if err != nil {
		c.replyInternalError(ctx, chatID, "list_cars_failed", err)
		return
	}

	if len(cars) == 0 {
		c.reply(ctx, chatID, "No cars registered yet.", nil)
		return
	}

	for _, car := range cars {
		c.reply(ctx, chatID, renderCar(car), nil)
	}
}

func (c *Client) handlePending(ctx context.Context, uid, chatID int64) {
	if !c.isAdmin(ctx, uid) {
		return
	}

	views, err := c.engine.ListPending(ctx)
	if err != nil {
		c.replyInternalError(ctx, chatID, "list_pending_failed", err)
		return
	}

	if len(views) == 0 {
		c.reply(ctx, chatID, "No pending tickets.", nil)
		return
	}

	for _, v := range views {
		var markup models.ReplyMarkup
		if v.Ticket.Status == domain.StatusPendingAdmin {
			markup = reviewKeyboard(v.Ticket.ID)
		}
		c.reply(ctx, chatID, renderOpenTicket(v), markup)
	}
}

func (c *Client) handleHistory(ctx context.Context, uid, chatID int64) {
	admin := c.isAdmin(ctx, uid)

	var scope *int64
	if !admin {
		scope = &uid
	}

	views, err := c.engine.ListHistory(ctx, scope)
	if err != nil {
		c.replyInternalError(ctx, chatID, "list_history_failed", err)
		return
	}

	if len(views) == 0 {
		c.reply(ctx, chatID, "History is empty.", nil)
		return
	}

	for _, v := range views {
		c.reply(ctx, chatID, renderHistoryTicket(v), nil)
	}
}

func (c *Client) handleAssign(ctx context.Context, uid, chatID int64, args string) {
	if !c.isAdmin(ctx, uid) {
		return
	}

	parts := strings.Split(args, ":")
	if len(parts) != 2 {
		return
	}

	ticketID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return
	}

	var mechanicID *int64
	if parts[1] != assignNone {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return
		}
		mechanicID = &id
	}

	if err := c.engine.AssignMechanic(ctx, ticketID, mechanicID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			c.reply(ctx, chatID, msgNotApplicable, nil)
			return
		}
		c.replyInternalError(ctx, chatID, "assign_failed", err)
		return
	}

	c.reply(ctx, chatID, "Assigned.", nil)
}

func (c *Client) handleReview(ctx context.Context, uid, chatID int64, arg string, approve bool) {
	if !c.isAdmin(ctx, uid) {
		return
	}

	ticketID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}

	if approve {
		err = c.engine.Approve(ctx, ticketID, uid)
	} else {
		err = c.engine.Reject(ctx, ticketID, uid)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			c.reply(ctx, chatID, msgNotApplicable, nil)
			return
		}
		c.replyInternalError(ctx, chatID, "review_failed", err)
		return
	}

	if approve {
		c.reply(ctx, chatID, "Approved.", nil)
	} else {
		c.reply(ctx, chatID, "Rejected.", nil)
	}
}

func (c *Client) handleFinishStart(ctx context.Context, uid, chatID int64, arg string) {
	ticketID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}

	c.sessions.Begin(uid, &session.Flow{
		Kind:   session.KindFinishTicket,
		Finish: &session.CompletionDraft{TicketID: ticketID},
	})
	c.reply(ctx, chatID, "Final mileage:", nil)
}

// continueFlow routes free text into the caller's in-progress wizard, if any.
func (c *Client) continueFlow(ctx context.Context, uid, chatID int64, text string) {
	flow, ok := c.sessions.Get(uid)
	if !ok {
		c.logger.WithFields(logging.Fields{
			"event":   "message_unrouted",
			"user_id": uid,
		}).Debug("message outside any flow")
		return
	}

	switch flow.Kind {
	case session.KindAddCar:
		c.stepAddCar(ctx, uid, chatID, flow, text)
	case session.KindNewTicket:
		c.stepNewTicket(ctx, uid, chatID, flow, text)
	case session.KindGrantRole:
		c.stepGrantRole(ctx, uid, chatID, flow, text)
	case session.KindFinishTicket:
		c.stepFinishTicket(ctx, uid, chatID, flow, text)
	default:
		c.sessions.Clear(uid)
	}
}

func (c *Client) stepAddCar(ctx context.Context, uid, chatID int64, flow *session.Flow, text string) {
	draft := flow.AddCar

	switch flow.Step {
	case session.StepCarVIN:
		draft.VIN = text
		flow.Step = session.StepCarMileage
		c.reply(ctx, chatID, "Mileage:", nil)
	case session.StepCarMileage:
		mileage, err := strconv.ParseInt(text, 10, 64)
		if err != nil || mileage < 0 {
			c.reply(ctx, chatID, "Please enter the mileage as a whole number.", nil)
			return
		}
		draft.Mileage = mileage
		flow.Step = session.StepCarYear
		c.reply(ctx, chatID, "Year:", nil)
	case session.StepCarYear:
		year, err := strconv.Atoi(text)
		if err != nil {
			c.reply(ctx, chatID, "Please enter the year as a number.", nil)
			return
		}
		draft.Year = year
		flow.Step = session.StepCarOwner
		c.reply(ctx, chatID, "Owner company:", nil)
	case session.StepCarOwner:
		draft.OwnerCompany = text
		flow.Step = session.StepCarModel
		c.reply(ctx, chatID, "Model:", nil)
	case session.StepCarModel:
		draft.Model = text
		flow.Step = session.StepCarPlate
		c.reply(ctx, chatID, "Plate:", nil)
	case session.StepCarPlate:
		draft.Plate = text
		flow.Step = session.StepCarFuel
		c.reply(ctx, chatID, "Fuel type:", nil)
	case session.StepCarFuel:
		draft.FuelType = text
		c.finishAddCar(ctx, uid, chatID, draft)
	default:
		c.sessions.Clear(uid)
	}
}

func (c *Client) finishAddCar(ctx context.Context, uid, chatID int64, draft *session.CarDraft) {
	car, err := c.registry.Register(ctx, fleet.CarInput{
		VIN:          draft.VIN,
		Mileage:      draft.Mileage,
		Year:         draft.Year,
		OwnerCompany: draft.OwnerCompany,
		Model:        draft.Model,
		Plate:        draft.Plate,
		FuelType:     draft.FuelType,
	})

	c.sessions.Clear(uid)

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			c.reply(ctx, chatID, "A car with this VIN or plate is already registered.", nil)
		case domain.IsValidation(err):
			c.reply(ctx, chatID, err.Error(), nil)
		default:
			c.replyInternalError(ctx, chatID, "register_car_failed", err)
		}
		return
	}

	c.reply(ctx, chatID, fmt.Sprintf("Car added. ID %d", car.ID), nil)
}

func (c *Client) stepNewTicket(ctx context.Context, uid, chatID int64, flow *session.Flow, text string) {
	draft := flow.NewTicket

	switch flow.Step {
	case session.StepTicketCar:
		car, err := c.registry.ResolveByIdentifier(ctx, text)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.reply(ctx, chatID, "Car not found, try another VIN / plate / id.", nil)
				return
			}
			c.replyInternalError(ctx, chatID, "resolve_car_failed", err)
			return
		}
		draft.CarID = car.ID
		flow.Step = session.StepTicketDescription
		c.reply(ctx, chatID, "Describe the work:", nil)
	case session.StepTicketDescription:
		draft.Description = text
		flow.Step = session.StepTicketDesiredAt
		c.reply(ctx, chatID, "Desired date / time:", nil)
	case session.StepTicketDesiredAt:
		c.finishNewTicket(ctx, uid, chatID, draft, text)
	default:
		c.sessions.Clear(uid)
	}
}

func (c *Client) finishNewTicket(ctx context.Context, uid, chatID int64, draft *session.TicketDraft, desiredAt string) {
	role, err := c.policy.ResolveRole(ctx, uid)
	if err != nil {
		c.sessions.Clear(uid)
		c.replyInternalError(ctx, chatID, "resolve_role_failed", err)
		return
	}

	created, needsAssignment, err := c.engine.Create(ctx, draft.CarID, uid, role, draft.Description, desiredAt)

	c.sessions.Clear(uid)

	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.reply(ctx, chatID, "Car not found.", nil)
			return
		}
		c.replyInternalError(ctx, chatID, "create_ticket_failed", err)
		return
	}

	if needsAssignment {
		mechanics, err := c.engine.Mechanics(ctx)
		if err != nil {
			c.replyInternalError(ctx, chatID, "list_mechanics_failed", err)
			return
		}
		c.reply(ctx, chatID, "Choose a mechanic:", mechanicsKeyboard(mechanics, created.ID))
		return
	}

	c.reply(ctx, chatID, fmt.Sprintf("Ticket #%d created", created.ID), nil)
}

func (c *Client) stepGrantRole(ctx context.Context, uid, chatID int64, flow *session.Flow, text string) {
	tgID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || tgID <= 0 {
		c.reply(ctx, chatID, "Invalid Telegram id, try again.", nil)
		return
	}

	role := flow.GrantRole.Role
	c.sessions.Clear(uid)

	if err := c.granter.SetRole(ctx, tgID, role); err != nil {
		c.replyInternalError(ctx, chatID, "grant_role_failed", err)
		return
	}

	c.logger.WithFields(logging.Fields{
		"event":   "role_granted",
		"user_id": uid,
		"target":  tgID,
		"role":    role,
	}).Info("granted role")

	c.reply(ctx, chatID, "Done.", nil)
}

func (c *Client) stepFinishTicket(ctx context.Context, uid, chatID int64, flow *session.Flow, text string) {
	draft := flow.Finish

	switch flow.Step {
	case session.StepFinishMileage:
		mileage, err := strconv.ParseInt(text, 10, 64)
		if err != nil || mileage < 0 {
			c.reply(ctx, chatID, "Please enter the final mileage as a whole number.", nil)
			return
		}
		draft.Mileage = mileage
		flow.Step = session.StepFinishCost
		c.reply(ctx, chatID, "Net cost:", nil)
	case session.StepFinishCost:
		cost, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
		if err != nil || cost < 0 {
			c.reply(ctx, chatID, "Please enter a non-negative cost.", nil)
			return
		}
		draft.Cost = cost
		flow.Step = session.StepFinishComment
		c.reply(ctx, chatID, "Comments:", nil)
	case session.StepFinishComment:
		c.sessions.Clear(uid)

		err := c.engine.RecordCompletion(ctx, draft.TicketID, uid, draft.Mileage, draft.Cost, text)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				c.reply(ctx, chatID, "This ticket can no longer be completed.", nil)
				return
			}
			c.replyInternalError(ctx, chatID, "complete_ticket_failed", err)
			return
		}

		c.reply(ctx, chatID, fmt.Sprintf("Ticket #%d completed.", draft.TicketID), nil)
	default:
		c.sessions.Clear(uid)
	}
}

// isAdmin is the gate for privileged actions. Lookup failures are treated the
// same as a negative answer: the handler stays silent.
func (c *Client) isAdmin(ctx context.Context, uid int64) bool {
	if c.policy == nil {
		return false
	}

	admin, err := c.policy.IsAdmin(ctx, uid)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "admin_check_failed",
			"user_id": uid,
		}).WithError(err).Error("admin check failed")
		return false
	}

	return admin
}

func (c *Client) replyInternalError(ctx context.Context, chatID int64, event string, err error) {
	c.logger.WithFields(logging.Fields{
		"event":   event,
		"chat_id": chatID,
	}).WithError(err).Error("operation failed")

	c.reply(ctx, chatID, msgGenericFailure, nil)
}
