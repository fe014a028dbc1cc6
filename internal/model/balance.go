package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountBalance is a materialized view over the user's completed
// transactions. It is never mutated directly; every change goes through a
// ledger append that updates the aggregates in the same atomic unit.
type AccountBalance struct {
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	CurrentBalance    int64     `json:"current_balance" db:"current_balance"`
	TotalEarned       int64     `json:"total_earned" db:"total_earned"`
	TotalPenalties    int64     `json:"total_penalties" db:"total_penalties"`
	TotalFinePayments int64     `json:"total_fine_payments" db:"total_fine_payments"`
	TotalDebtPayments int64     `json:"total_debt_payments" db:"total_debt_payments"`
	ReservedAmount    int64     `json:"reserved_amount" db:"reserved_amount"`
	// TotalOutstandingDebt is derived from the user's outstanding debts with
	// accrual applied; it is not persisted on the balance row.
	TotalOutstandingDebt int64     `json:"total_outstanding_debt" db:"-"`
	WithdrawableAmount   int64     `json:"withdrawable_amount" db:"-"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// Recompute refreshes the derived fields. The withdrawable amount is the
// positive part of the balance minus what pending withdrawals have reserved.
func (b *AccountBalance) Recompute() {
	withdrawable := b.CurrentBalance
	if withdrawable < 0 {
		withdrawable = 0
	}
	withdrawable -= b.ReservedAmount
	if withdrawable < 0 {
		withdrawable = 0
	}
	b.WithdrawableAmount = withdrawable
}
