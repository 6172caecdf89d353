// Package session holds per-identity multi-step conversation state for the
// input wizards. State is keyed by Telegram user id, never shared across
// identities, and expires when left idle.
package session

import (
	"sync"
	"time"
)

// Kind tags which wizard a flow record belongs to.
type Kind int

const (
	KindNone Kind = iota
	KindAddCar
	KindNewTicket
	KindGrantRole
	KindFinishTicket
)

// Steps of the add-car wizard, in prompt order.
const (
	StepCarVIN = iota
	StepCarMileage
	StepCarYear
	StepCarOwner
	StepCarModel
	StepCarPlate
	StepCarFuel
)

// Steps of the new-ticket wizard.
const (
	StepTicketCar = iota
	StepTicketDescription
	StepTicketDesiredAt
)

// Steps of the finish-ticket wizard.
const (
	StepFinishMileage = iota
	StepFinishCost
	StepFinishComment
)

// CarDraft accumulates add-car wizard answers.
type CarDraft struct {
	VIN          string
	Mileage      int64
	Year         int
	OwnerCompany string
	Model        string
	Plate        string
	FuelType     string
}

// TicketDraft accumulates new-ticket wizard answers.
type TicketDraft struct {
	CarID       int64
	Description string
}

// RoleDraft records which role a grant-role wizard will assign.
type RoleDraft struct {
	Role string
}

// CompletionDraft accumulates finish-ticket wizard answers.
type CompletionDraft struct {
	TicketID int64
	Mileage  int64
	Cost     float64
}

// Flow is one in-progress wizard for one identity. Exactly one of the draft
// pointers matching Kind is non-nil.
type Flow struct {
	Kind      Kind
	Step      int
	AddCar    *CarDraft
	NewTicket *TicketDraft
	GrantRole *RoleDraft
	Finish    *CompletionDraft
	touchedAt time.Time
}

// DefaultTTL is how long an idle flow survives before being discarded.
const DefaultTTL = 30 * time.Minute

// Store keeps at most one active flow per identity.
type Store struct {
	mu    sync.Mutex
	flows map[int64]*Flow
	ttl   time.Duration
	now   func() time.Time
}

// NewStore constructs a Store with the given idle TTL; a non-positive TTL
// falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{
		flows: make(map[int64]*Flow),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Begin replaces any active flow for the identity with the given one.
func (s *Store) Begin(tgID int64, flow *Flow) {
	if s == nil || flow == nil {
		return
	}

	s.mu.Lock()
	flow.touchedAt = s.now()
	s.flows[tgID] = flow
	s.mu.Unlock()
}

// Get returns the active flow for the identity, refreshing its idle timer.
// Expired flows are discarded as if cleared.
func (s *Store) Get(tgID int64) (*Flow, bool) {
	if s == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[tgID]
	if !ok {
		return nil, false
	}

	if s.now().Sub(flow.touchedAt) > s.ttl {
		delete(s.flows, tgID)
		return nil, false
	}

	flow.touchedAt = s.now()
	return flow, true
}

// Clear discards the active flow for the identity, if any.
func (s *Store) Clear(tgID int64) {
	if s == nil {
		return
	}

	s.mu.Lock()
	delete(s.flows, tgID)
	s.mu.Unlock()
}
