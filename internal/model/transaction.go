package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeReward      TransactionType = "REWARD"
	TransactionTypeBonus       TransactionType = "BONUS"
	TransactionTypePenalty     TransactionType = "PENALTY"
	TransactionTypeFinePayment TransactionType = "FINE_PAYMENT"
	TransactionTypeDebtPayment TransactionType = "DEBT_PAYMENT"
	TransactionTypeWithdrawal  TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an immutable, append-only ledger record. Amount is an
// unsigned magnitude in minor currency units; the sign is implied by Type.
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Amount      int64             `json:"amount" db:"amount"`
	Description string            `json:"description" db:"description"`
	Status      TransactionStatus `json:"status" db:"status"`
	ReferenceID *uuid.UUID        `json:"reference_id" db:"reference_id"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeReward, TransactionTypeBonus, TransactionTypePenalty,
		TransactionTypeFinePayment, TransactionTypeDebtPayment, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// Sign reports the balance effect of the type: +1 for credits, -1 for debits.
func (t TransactionType) Sign() int64 {
	switch t {
	case TransactionTypeReward, TransactionTypeBonus, TransactionTypeDebtPayment:
		return 1
	default:
		return -1
	}
}

// SignedAmount is the transaction's effect on the current balance.
func (t *Transaction) SignedAmount() int64 {
	return t.Type.Sign() * t.Amount
}

type AppendTransactionRequest struct {
	UserID      uuid.UUID       `json:"user_id" validate:"required"`
	Type        TransactionType `json:"type" validate:"required"`
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description"`
}
