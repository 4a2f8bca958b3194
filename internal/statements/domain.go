// Package statements rolls a customer's completed orders and cleared
// payments for one calendar month into a single statement.
package statements

import (
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Status of a statement in the collections workflow.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusSent, StatusPaid, StatusOverdue},
	StatusSent:    {StatusPaid, StatusOverdue},
	StatusOverdue: {StatusSent, StatusPaid},
	StatusPaid:    nil,
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether target is allowed from s.
func (s Status) CanTransitionTo(target Status) bool {
	if !s.IsValid() || !target.IsValid() {
		return false
	}
	if s == target {
		return true
	}
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Statement is the monthly roll-up for one customer. PeriodEnd is exclusive.
type Statement struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customer_id"`
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TotalOrders int       `json:"total_orders"`
	TotalAmount float64   `json:"total_amount"`
	PaidAmount  float64   `json:"paid_amount"`
	Balance     float64   `json:"balance"`
	Status      Status    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Totals are the sums read for one customer and period.
type Totals struct {
	Orders      int
	OrderAmount float64
	Paid        float64
}

// GenerateRequest asks for one statement.
type GenerateRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
	Period     string `json:"period" validate:"required,len=7"`
}

// UpdateStatusRequest changes status and optionally the paid amount.
type UpdateStatusRequest struct {
	Status     Status   `json:"status" validate:"required,oneof=draft sent paid overdue"`
	PaidAmount *float64 `json:"paid_amount,omitempty" validate:"omitempty,gte=0"`
}

// Domain errors.
var (
	ErrStatementNotFound = shared.NewError(shared.KindNotFound, "statement not found")
	ErrCustomerNotFound  = shared.NewError(shared.KindNotFound, "customer not found")
	ErrAlreadyExists     = shared.NewError(shared.KindConflict, "statement already exists for this period")
	ErrInvalidStatus     = shared.NewError(shared.KindValidation, "invalid statement status transition")
	ErrInvalidPaidAmount = shared.NewError(shared.KindValidation, "paid amount must be between zero and the statement total")
)
