package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"traffic-finance-api/internal/model"
)

// Store interfaces consumed by the services. The repository package provides
// the Postgres implementations; every mutating method is atomic and
// serializes per user on the balance row.

type LedgerStore interface {
	Append(ctx context.Context, txn *model.Transaction) (*model.AccountBalance, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*model.AccountBalance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error)
	ListByReference(ctx context.Context, userID, referenceID uuid.UUID) ([]model.Transaction, error)
	ListByPeriod(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]model.Transaction, error)
}

type WithdrawalStore interface {
	CreateReserving(ctx context.Context, w *model.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WithdrawalRequest, error)
	Approve(ctx context.Context, id, decidedBy uuid.UUID, txn *model.Transaction) (*model.WithdrawalRequest, error)
	Reject(ctx context.Context, id, decidedBy uuid.UUID) (*model.WithdrawalRequest, error)
}

type DebtStore interface {
	Create(ctx context.Context, debt *model.OutstandingDebt) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.OutstandingDebt, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.OutstandingDebt, error)
	Settle(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64, txn *model.Transaction) error
	Waive(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64) error
}

type FineStore interface {
	Create(ctx context.Context, fine *model.Fine) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Fine, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Fine, error)
	ListAll(ctx context.Context) ([]model.Fine, error)
	ListOverdueWithoutDebt(ctx context.Context, asOf time.Time) ([]model.Fine, error)
	OpenDispute(ctx context.Context, dispute *model.Dispute) (*model.Fine, error)
	Resolve(ctx context.Context, fineID uuid.UUID, target model.FineStatus, actor uuid.UUID, refund *model.Transaction) (*model.Fine, error)
	MarkPaid(ctx context.Context, fineID uuid.UUID, txn *model.Transaction) (*model.Fine, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
}

// PaymentGateway is the external settlement collaborator for debt payments.
type PaymentGateway interface {
	CreateSession(ctx context.Context, debtID uuid.UUID, amount int64, method string) (*model.DebtPaymentSession, error)
	VerifySession(ctx context.Context, sessionID string) (int64, error)
}
