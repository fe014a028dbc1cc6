package model

import (
	"time"

	"github.com/google/uuid"

	"traffic-finance-api/internal/apperr"
)

type DebtStatus string

const (
	DebtStatusOutstanding DebtStatus = "OUTSTANDING"
	DebtStatusPaid        DebtStatus = "PAID"
	DebtStatusWaived      DebtStatus = "WAIVED"
)

// Late fees accrue at 2.5% of the original amount per full week overdue,
// simple accrual: the base never includes previously accrued fees.
const (
	lateFeePerMille = 25
	week            = 7 * 24 * time.Hour
)

// OutstandingDebt tracks an unsettled payment obligation. LateFees and
// CurrentAmount are recomputed on every read while the debt is OUTSTANDING;
// they are persisted only at settlement, freezing the accrual.
type OutstandingDebt struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	FineID         *uuid.UUID `json:"fine_id" db:"fine_id"`
	OriginalAmount int64      `json:"original_amount" db:"original_amount"`
	LateFees       int64      `json:"late_fees" db:"late_fees"`
	CurrentAmount  int64      `json:"current_amount" db:"current_amount"`
	WeeksPastDue   int        `json:"weeks_past_due" db:"-"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	Status         DebtStatus `json:"status" db:"status"`
	SettledAt      *time.Time `json:"settled_at" db:"settled_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// AccrueAt recomputes the derived fields as of the given time. Settled and
// waived debts keep the values frozen at the status transition.
func (d *OutstandingDebt) AccrueAt(now time.Time) error {
	if d.DueDate.IsZero() {
		return apperr.DataIntegrity(nil, "debt %s has no due date", d.ID)
	}

	if d.Status != DebtStatusOutstanding {
		d.WeeksPastDue = 0
		return nil
	}

	weeks := int64(0)
	if now.After(d.DueDate) {
		weeks = int64(now.Sub(d.DueDate) / week)
	}

	d.WeeksPastDue = int(weeks)
	d.LateFees = d.OriginalAmount * lateFeePerMille * weeks / 1000
	d.CurrentAmount = d.OriginalAmount + d.LateFees
	return nil
}

type DebtPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type DebtPaymentConfirmRequest struct {
	SessionID string `json:"session_id"`
}

// DebtPaymentSession is the handle returned by the external payment gateway.
type DebtPaymentSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	Amount      int64  `json:"amount"`
}

type DebtStatusRequest struct {
	Status DebtStatus `json:"status"`
}
