package model

import (
	"time"

	"github.com/google/uuid"
)

type FineStatus string

const (
	FineStatusUnpaid    FineStatus = "UNPAID"
	FineStatusPaid      FineStatus = "PAID"
	FineStatusCancelled FineStatus = "CANCELLED"
	FineStatusDisputed  FineStatus = "DISPUTED"
)

// Terminal reports whether the status permits no further transitions.
func (s FineStatus) Terminal() bool {
	return s == FineStatusPaid || s == FineStatusCancelled
}

type Fine struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	ViolationID uuid.UUID  `json:"violation_id" db:"violation_id"`
	Amount      int64      `json:"amount" db:"amount"`
	Status      FineStatus `json:"status" db:"status"`
	IssuedBy    uuid.UUID  `json:"issued_by" db:"issued_by"`
	IssuedAt    time.Time  `json:"issued_at" db:"issued_at"`
	DueDate     time.Time  `json:"due_date" db:"due_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusApproved DisputeStatus = "APPROVED"
	DisputeStatusRejected DisputeStatus = "REJECTED"
)

// Dispute records one contestation of a fine. A fine has at most one open
// dispute at a time; resolutions keep who decided and when for audit.
type Dispute struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	FineID     uuid.UUID     `json:"fine_id" db:"fine_id"`
	UserID     uuid.UUID     `json:"user_id" db:"user_id"`
	Reason     string        `json:"reason" db:"reason"`
	Status     DisputeStatus `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at" db:"resolved_at"`
	ResolvedBy *uuid.UUID    `json:"resolved_by" db:"resolved_by"`
}

type CreateFineRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	ViolationID uuid.UUID `json:"violation_id" validate:"required"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

type DisputeFineRequest struct {
	Reason string `json:"reason"`
}

type FineStatusRequest struct {
	Status FineStatus `json:"status"`
}
