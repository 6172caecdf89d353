package domain

import "time"

// Ticket statuses. Transitions are monotonic: pending_admin moves to approved
// or rejected, approved moves to completed. Terminal statuses never change.
const (
	StatusPendingAdmin = "pending_admin"
	StatusApproved     = "approved"
	StatusRejected     = "rejected"
	StatusCompleted    = "completed"
)

// Ticket is a service request raised against a single car. The creator
// identity and role are recorded at creation and never change. The completion
// fields (FinalMileage, CostNet, Comments, CompletedAt) are populated
// together, exactly once, when the assigned mechanic records the result.
type Ticket struct {
	ID            int64      `bson:"id" json:"id"`
	CarID         int64      `bson:"car_id" json:"car_id"`
	MechanicTgID  *int64     `bson:"mechanic_tg_id" json:"mechanic_tg_id"`
	AdminTgID     *int64     `bson:"admin_tg_id" json:"admin_tg_id"`
	CreatedByTgID int64      `bson:"created_by_tg_id" json:"created_by_tg_id"`
	CreatedByRole string     `bson:"created_by_role" json:"created_by_role"`
	Description   string     `bson:"description" json:"description"`
	DesiredAt     string     `bson:"desired_at" json:"desired_at"`
	Status        string     `bson:"status" json:"status"`
	FinalMileage  *int64     `bson:"final_mileage" json:"final_mileage"`
	CostNet       *float64   `bson:"cost_net" json:"cost_net"`
	Comments      *string    `bson:"comments" json:"comments"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	CompletedAt   *time.Time `bson:"completed_at" json:"completed_at"`
}

// Completed reports whether the ticket reached its terminal completed status.
func (t Ticket) Completed() bool {
	return t.Status == StatusCompleted
}
