package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/session"
	"fleet_service_bot/internal/ticket"
)

func TestStartGreetsWithRoleKeyboard(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.message(100, 100, "/start"))

	if len(f.bot.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(f.bot.sent))
	}
	text := f.bot.sent[0].Text
	if !strings.Contains(text, "Sam Driver") || !strings.Contains(text, domain.RoleAdmin) {
		t.Fatalf("unexpected greeting: %s", text)
	}

	markup, ok := f.bot.sent[0].ReplyMarkup.(*models.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("expected reply keyboard, got %T", f.bot.sent[0].ReplyMarkup)
	}
	if len(markup.Keyboard) != 2 {
		t.Fatalf("expected admin keyboard rows, got %v", markup.Keyboard)
	}

	if name, ok := f.registrar.seen[100]; !ok || name != "Sam Driver" {
		t.Fatalf("expected user to be registered on contact, got %v", f.registrar.seen)
	}
}

func TestAdminMenuSilentForNonAdmins(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.message(500, 500, btnAdmin))

	if len(f.bot.sent) != 0 {
		t.Fatalf("non-admin admin menu press must be a silent no-op, got %v", f.bot.sent)
	}
}

func TestAdminMenuSilentWhenPolicyFails(t *testing.T) {
	f := newClientFixture(t)
	f.policy.adminErr = errors.New("policy down")

	f.handle(f.message(100, 100, btnAdmin))

	if len(f.bot.sent) != 0 {
		t.Fatalf("policy failure must read as non-admin, got %v", f.bot.sent)
	}
}

func TestCancelClearsActiveFlow(t *testing.T) {
	f := newClientFixture(t)
	f.sessions.Begin(500, &session.Flow{Kind: session.KindNewTicket, NewTicket: &session.TicketDraft{}})

	f.handle(f.message(500, 500, "/cancel"))

	if _, ok := f.sessions.Get(500); ok {
		t.Fatalf("expected flow to be cleared")
	}
	if f.bot.lastText(t) != "Cancelled." {
		t.Fatalf("unexpected reply: %s", f.bot.lastText(t))
	}
}

func TestAddCarFlowWalkthrough(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.registry.registerCar = domain.Car{ID: 12}

	f.handle(f.callback(100, 100, cbCarAdd))
	if len(f.bot.answered) != 1 {
		t.Fatalf("expected callback to be answered")
	}
	if f.bot.lastText(t) != "VIN:" {
		t.Fatalf("expected VIN prompt, got %s", f.bot.lastText(t))
	}

	steps := []struct {
		input  string
		prompt string
	}{
		{"WVWZZZ1JZ3W386752", "Mileage:"},
		{"120000", "Year:"},
		{"2019", "Owner company:"},
		{"Hauler GmbH", "Model:"},
		{"Crafter", "Plate:"},
		{"B-AB 1234", "Fuel type:"},
	}
	for _, step := range steps {
		f.handle(f.message(100, 100, step.input))
		if f.bot.lastText(t) != step.prompt {
			t.Fatalf("after %q expected prompt %q, got %q", step.input, step.prompt, f.bot.lastText(t))
		}
	}

	f.handle(f.message(100, 100, "diesel"))

	if len(f.registry.registered) != 1 {
		t.Fatalf("expected one registration, got %d", len(f.registry.registered))
	}
	input := f.registry.registered[0]
	if input.VIN != "WVWZZZ1JZ3W386752" || input.Mileage != 120000 || input.Year != 2019 ||
		input.OwnerCompany != "Hauler GmbH" || input.Model != "Crafter" ||
		input.Plate != "B-AB 1234" || input.FuelType != "diesel" {
		t.Fatalf("unexpected car input: %+v", input)
	}

	if !strings.Contains(f.bot.lastText(t), "ID 12") {
		t.Fatalf("expected confirmation with car id, got %s", f.bot.lastText(t))
	}
	if _, ok := f.sessions.Get(100); ok {
		t.Fatalf("expected flow to end after registration")
	}
}

func TestAddCarRepromptsOnBadMileage(t *testing.T) {
	f := newClientFixture(t)
	f.sessions.Begin(100, &session.Flow{Kind: session.KindAddCar, Step: session.StepCarMileage, AddCar: &session.CarDraft{VIN: "VIN12345"}})

	f.handle(f.message(100, 100, "not a number"))

	if !strings.Contains(f.bot.lastText(t), "whole number") {
		t.Fatalf("expected re-prompt, got %s", f.bot.lastText(t))
	}

	flow, ok := f.sessions.Get(100)
	if !ok || flow.Step != session.StepCarMileage {
		t.Fatalf("expected flow to stay on the mileage step, got %+v", flow)
	}
}

func TestAddCarCallbackSilentForNonAdmins(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.callback(500, 500, cbCarAdd))

	if len(f.bot.sent) != 0 {
		t.Fatalf("non-admin add-car must be a silent no-op, got %v", f.bot.sent)
	}
	if _, ok := f.sessions.Get(500); ok {
		t.Fatalf("no flow may be started for a non-admin")
	}
}

func TestAddCarDuplicateReported(t *testing.T) {
	f := newClientFixture(t)
	f.registry.registerErr = domain.ErrDuplicate
	f.sessions.Begin(100, &session.Flow{Kind: session.KindAddCar, Step: session.StepCarFuel, AddCar: &session.CarDraft{VIN: "VIN12345", Plate: "B-AB 1"}})

	f.handle(f.message(100, 100, "diesel"))

	if !strings.Contains(f.bot.lastText(t), "already registered") {
		t.Fatalf("expected duplicate message, got %s", f.bot.lastText(t))
	}
}

func TestNewTicketFlowForRegularUser(t *testing.T) {
	f := newClientFixture(t)
	f.registry.resolved["B-AB 1234"] = domain.Car{ID: 3}
	f.engine.createdTicket = domain.Ticket{ID: 8}

	f.handle(f.callback(500, 500, cbServiceNew))
	if f.bot.lastText(t) != "Car VIN / plate / id:" {
		t.Fatalf("expected car prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(500, 500, "B-AB 1234"))
	if f.bot.lastText(t) != "Describe the work:" {
		t.Fatalf("expected description prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(500, 500, "oil change"))
	if f.bot.lastText(t) != "Desired date / time:" {
		t.Fatalf("expected date prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(500, 500, "2026-09-15 10:00"))

	if len(f.engine.createCalls) != 1 {
		t.Fatalf("expected one ticket creation, got %d", len(f.engine.createCalls))
	}
	call := f.engine.createCalls[0]
	if call.carID != 3 || call.creator != 500 || call.role != domain.RoleUser || call.desiredAt != "2026-09-15 10:00" {
		t.Fatalf("unexpected create call: %+v", call)
	}

	if !strings.Contains(f.bot.lastText(t), "Ticket #8 created") {
		t.Fatalf("expected confirmation, got %s", f.bot.lastText(t))
	}
}

func TestNewTicketUnknownCarReprompts(t *testing.T) {
	f := newClientFixture(t)
	f.sessions.Begin(500, &session.Flow{Kind: session.KindNewTicket, NewTicket: &session.TicketDraft{}})

	f.handle(f.message(500, 500, "UNKNOWN"))

	if !strings.Contains(f.bot.lastText(t), "Car not found") {
		t.Fatalf("expected not-found message, got %s", f.bot.lastText(t))
	}

	flow, ok := f.sessions.Get(500)
	if !ok || flow.Step != session.StepTicketCar {
		t.Fatalf("expected flow to stay on the car step, got %+v", flow)
	}
}

func TestNewTicketByAdminOffersMechanicPicker(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.registry.resolved["3"] = domain.Car{ID: 3}
	f.engine.createdTicket = domain.Ticket{ID: 8}
	f.engine.needsAssignment = true
	f.engine.mechanics = []domain.User{{TgID: 700, FullName: "Jordan Mech"}}

	f.sessions.Begin(100, &session.Flow{Kind: session.KindNewTicket, Step: session.StepTicketDesiredAt, NewTicket: &session.TicketDraft{CarID: 3, Description: "brakes"}})
	f.handle(f.message(100, 100, "2026-09-16"))

	if f.bot.lastText(t) != "Choose a mechanic:" {
		t.Fatalf("expected mechanic picker, got %s", f.bot.lastText(t))
	}

	markup, ok := f.bot.sent[len(f.bot.sent)-1].ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", f.bot.sent[len(f.bot.sent)-1].ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected mechanic plus none rows, got %v", markup.InlineKeyboard)
	}
	if markup.InlineKeyboard[0][0].CallbackData != "service:assign:8:700" {
		t.Fatalf("unexpected assign callback: %s", markup.InlineKeyboard[0][0].CallbackData)
	}
	if markup.InlineKeyboard[1][0].CallbackData != "service:assign:8:none" {
		t.Fatalf("unexpected none callback: %s", markup.InlineKeyboard[1][0].CallbackData)
	}
}

func TestAssignCallbackWithMechanic(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.callback(100, 100, "service:assign:8:700"))

	if !f.engine.assignCalled || f.engine.assignTicket != 8 {
		t.Fatalf("expected assignment of ticket 8")
	}
	if f.engine.assignMech == nil || *f.engine.assignMech != 700 {
		t.Fatalf("expected mechanic 700, got %v", f.engine.assignMech)
	}
	if f.bot.lastText(t) != "Assigned." {
		t.Fatalf("unexpected reply: %s", f.bot.lastText(t))
	}
}

func TestAssignCallbackWithoutMechanic(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.callback(100, 100, "service:assign:8:none"))

	if !f.engine.assignCalled || f.engine.assignMech != nil {
		t.Fatalf("expected assignment without a mechanic, got %v", f.engine.assignMech)
	}
}

func TestAssignCallbackSilentForNonAdmins(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.callback(500, 500, "service:assign:8:700"))

	if f.engine.assignCalled {
		t.Fatalf("non-admin must not reach the engine")
	}
	if len(f.bot.sent) != 0 {
		t.Fatalf("expected silent no-op, got %v", f.bot.sent)
	}
}

func TestAssignCallbackStaleTicket(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.engine.assignErr = domain.ErrInvalidTransition

	f.handle(f.callback(100, 100, "service:assign:8:700"))

	if f.bot.lastText(t) != msgNotApplicable {
		t.Fatalf("expected not-applicable reply, got %s", f.bot.lastText(t))
	}
}

func TestApproveAndRejectCallbacks(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.callback(100, 100, "service:approve:8"))
	if f.engine.approvedTicket != 8 || f.engine.approvedBy != 100 {
		t.Fatalf("expected approval of ticket 8 by admin 100")
	}
	if f.bot.lastText(t) != "Approved." {
		t.Fatalf("unexpected reply: %s", f.bot.lastText(t))
	}

	f.handle(f.callback(100, 100, "service:reject:9"))
	if f.engine.rejectedTicket != 9 {
		t.Fatalf("expected rejection of ticket 9")
	}
	if f.bot.lastText(t) != "Rejected." {
		t.Fatalf("unexpected reply: %s", f.bot.lastText(t))
	}
}

func TestPendingListShowsReviewButtonsOnlyForPendingTickets(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.engine.pending = []ticket.View{
		{Ticket: domain.Ticket{ID: 1, Status: domain.StatusPendingAdmin}, Car: domain.Car{Plate: "B-AA 1"}},
		{Ticket: domain.Ticket{ID: 2, Status: domain.StatusApproved}, Car: domain.Car{Plate: "B-BB 2"}},
	}

	f.handle(f.callback(100, 100, cbServicePending))

	if len(f.bot.sent) != 2 {
		t.Fatalf("expected two ticket messages, got %d", len(f.bot.sent))
	}
	if _, ok := f.bot.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup); !ok {
		t.Fatalf("pending ticket must carry review buttons")
	}
	if f.bot.sent[1].ReplyMarkup != nil {
		t.Fatalf("approved ticket must not carry review buttons")
	}
}

func TestPendingListSilentForNonAdmins(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.callback(500, 500, cbServicePending))

	if len(f.bot.sent) != 0 {
		t.Fatalf("expected silent no-op, got %v", f.bot.sent)
	}
}

func TestHistoryScopeDependsOnRole(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.callback(100, 100, cbServiceHistory))
	if !f.engine.historySeen || f.engine.historyScope != nil {
		t.Fatalf("admin history must be unscoped, got %v", f.engine.historyScope)
	}

	f.engine.historySeen = false
	f.handle(f.callback(500, 500, cbServiceHistory))
	if !f.engine.historySeen || f.engine.historyScope == nil || *f.engine.historyScope != 500 {
		t.Fatalf("user history must be scoped to the caller, got %v", f.engine.historyScope)
	}
}

func TestGrantRoleFlow(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.callback(100, 100, cbGrantMechanic))
	if !strings.Contains(f.bot.lastText(t), domain.RoleMechanic) {
		t.Fatalf("expected role prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(100, 100, "abc"))
	if !strings.Contains(f.bot.lastText(t), "Invalid Telegram id") {
		t.Fatalf("expected re-prompt for bad id, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(100, 100, "700"))
	if f.granter.granted[700] != domain.RoleMechanic {
		t.Fatalf("expected mechanic grant for 700, got %v", f.granter.granted)
	}
	if f.bot.lastText(t) != "Done." {
		t.Fatalf("unexpected reply: %s", f.bot.lastText(t))
	}
}

func TestGrantRoleSilentForNonAdmins(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.callback(500, 500, cbGrantAdmin))

	if len(f.bot.sent) != 0 {
		t.Fatalf("expected silent no-op, got %v", f.bot.sent)
	}
	if _, ok := f.sessions.Get(500); ok {
		t.Fatalf("no grant flow may start for a non-admin")
	}
}

func TestFinishTicketFlow(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[700] = domain.RoleMechanic

	f.handle(f.callback(700, 700, "service:finish:8"))
	if f.bot.lastText(t) != "Final mileage:" {
		t.Fatalf("expected mileage prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(700, 700, "123456"))
	if f.bot.lastText(t) != "Net cost:" {
		t.Fatalf("expected cost prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(700, 700, "249,90"))
	if f.bot.lastText(t) != "Comments:" {
		t.Fatalf("expected comment prompt, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(700, 700, "replaced brake pads"))

	if !f.engine.completed {
		t.Fatalf("expected completion to reach the engine")
	}
	args := f.engine.completedArgs
	if args.ticketID != 8 || args.mechanic != 700 || args.mileage != 123456 || args.cost != 249.90 || args.comments != "replaced brake pads" {
		t.Fatalf("unexpected completion args: %+v", args)
	}

	if !strings.Contains(f.bot.lastText(t), "Ticket #8 completed") {
		t.Fatalf("expected confirmation, got %s", f.bot.lastText(t))
	}
}

func TestFinishTicketInvalidTransitionReported(t *testing.T) {
	f := newClientFixture(t)
	f.engine.completeErr = domain.ErrInvalidTransition
	f.sessions.Begin(700, &session.Flow{Kind: session.KindFinishTicket, Step: session.StepFinishComment, Finish: &session.CompletionDraft{TicketID: 8}})

	f.handle(f.message(700, 700, "done"))

	if !strings.Contains(f.bot.lastText(t), "no longer be completed") {
		t.Fatalf("expected stale-ticket message, got %s", f.bot.lastText(t))
	}
}

func TestMyJobsListsAssignedTickets(t *testing.T) {
	f := newClientFixture(t)
	f.engine.mechanicViews = []ticket.View{
		{Ticket: domain.Ticket{ID: 8, DesiredAt: "2026-09-16", Description: "brakes"}, Car: domain.Car{Plate: "B-AA 1"}},
	}

	f.handle(f.message(700, 700, btnMyJobs))

	if len(f.bot.sent) != 1 {
		t.Fatalf("expected one job message, got %d", len(f.bot.sent))
	}
	if !strings.Contains(f.bot.sent[0].Text, "#8") || !strings.Contains(f.bot.sent[0].Text, "brakes") {
		t.Fatalf("unexpected job rendering: %s", f.bot.sent[0].Text)
	}
	if _, ok := f.bot.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup); !ok {
		t.Fatalf("expected finish button on assigned ticket")
	}
}

func TestStatsCommandForAdmins(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.stats.users = 12
	f.stats.cars = 4
	f.stats.open = 2

	f.handle(f.message(100, 100, "/stats"))

	text := f.bot.lastText(t)
	if !strings.Contains(text, "Users: 12") || !strings.Contains(text, "Cars: 4") || !strings.Contains(text, "Open tickets: 2") {
		t.Fatalf("unexpected stats reply: %s", text)
	}

	g := newClientFixture(t)
	g.handle(g.message(500, 500, "/stats"))
	if len(g.bot.sent) != 0 {
		t.Fatalf("non-admin stats must be a silent no-op, got %v", g.bot.sent)
	}
}

func TestCostsCommandInclusiveWindow(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin
	f.engine.costTotal = 399.80

	f.handle(f.message(100, 100, "/costs 2026-08-01 2026-08-31"))

	wantFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !f.engine.costFrom.Equal(wantFrom) {
		t.Fatalf("expected window start %v, got %v", wantFrom, f.engine.costFrom)
	}
	wantTo := time.Date(2026, 8, 31, 23, 59, 59, 999000000, time.UTC)
	if !f.engine.costTo.Equal(wantTo) {
		t.Fatalf("expected inclusive window end %v, got %v", wantTo, f.engine.costTo)
	}

	if !strings.Contains(f.bot.lastText(t), "399.80") {
		t.Fatalf("expected total in reply, got %s", f.bot.lastText(t))
	}
}

func TestCostsCommandUsageAndValidation(t *testing.T) {
	f := newClientFixture(t)
	f.policy.roles[100] = domain.RoleAdmin

	f.handle(f.message(100, 100, "/costs"))
	if !strings.Contains(f.bot.lastText(t), "Usage:") {
		t.Fatalf("expected usage hint, got %s", f.bot.lastText(t))
	}

	f.handle(f.message(100, 100, "/costs not-a-date 2026-08-31"))
	if !strings.Contains(f.bot.lastText(t), "Invalid start date") {
		t.Fatalf("expected date error, got %s", f.bot.lastText(t))
	}
}

func TestCarListCallback(t *testing.T) {
	f := newClientFixture(t)
	f.registry.cars = []domain.Car{
		{ID: 2, Model: "Crafter", Year: 2019, VIN: "VIN22222", Plate: "B-BB 2", Mileage: 120000, FuelType: "diesel"},
		{ID: 1, Model: "Caddy", Year: 2015, VIN: "VIN11111", Plate: "B-AA 1", Mileage: 210000, FuelType: "petrol"},
	}

	f.handle(f.callback(500, 500, cbCarList))

	if len(f.bot.sent) != 2 {
		t.Fatalf("expected one message per car, got %d", len(f.bot.sent))
	}
	if !strings.Contains(f.bot.sent[0].Text, "Crafter") || !strings.Contains(f.bot.sent[1].Text, "Caddy") {
		t.Fatalf("unexpected car rendering: %v", f.bot.sent)
	}
}

func TestFreeTextOutsideAnyFlowIsIgnored(t *testing.T) {
	f := newClientFixture(t)

	f.handle(f.message(500, 500, "hello there"))

	if len(f.bot.sent) != 0 {
		t.Fatalf("expected no reply to unrouted text, got %v", f.bot.sent)
	}
}
