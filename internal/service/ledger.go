package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

const maxPageLimit = 100

type LedgerService struct {
	ledgerStore LedgerStore
	debtStore   DebtStore
	logger      *logrus.Logger
}

func NewLedgerService(ledgerStore LedgerStore, debtStore DebtStore, logger *logrus.Logger) *LedgerService {
	return &LedgerService{
		ledgerStore: ledgerStore,
		debtStore:   debtStore,
		logger:      logger,
	}
}

// AppendTransaction records one ledger entry. The store applies the balance
// effect in the same atomic unit as the insert.
func (s *LedgerService) AppendTransaction(
	ctx context.Context,
	userID uuid.UUID,
	transactionType model.TransactionType,
	amount int64,
	description string,
	referenceID *uuid.UUID,
) (*model.Transaction, error) {
	if !transactionType.Valid() {
		return nil, apperr.Validation("unknown transaction type %q", transactionType)
	}
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	txn := &model.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        transactionType,
		Amount:      amount,
		Description: description,
		Status:      model.TransactionStatusPending,
		ReferenceID: referenceID,
		CreatedAt:   time.Now(),
	}

	if _, err := s.ledgerStore.Append(ctx, txn); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    transactionType,
		}).Error("Failed to append transaction")
		return nil, err
	}

	return txn, nil
}

// GetBalance returns the balance view with the outstanding debt total
// derived from the user's debts, accrual applied.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (*model.AccountBalance, error) {
	balance, err := s.ledgerStore.GetBalance(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to get balance for user %s", userID)
		return nil, err
	}

	debts, err := s.debtStore.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to list debts for user %s", userID)
		return nil, err
	}

	now := time.Now()
	for i := range debts {
		if err := debts[i].AccrueAt(now); err != nil {
			return nil, err
		}
		if debts[i].Status == model.DebtStatusOutstanding {
			balance.TotalOutstandingDebt += debts[i].CurrentAmount
		}
	}

	return balance, nil
}

// ListTransactions returns a page of the user's history, newest first. An
// over-range page yields an empty slice.
func (s *LedgerService) ListTransactions(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Transaction, error) {
	if page < 1 {
		return nil, apperr.Validation("page must be at least 1")
	}
	if limit < 1 {
		return nil, apperr.Validation("limit must be at least 1")
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	transactions, err := s.ledgerStore.ListTransactions(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to list transactions for user %s", userID)
		return nil, err
	}

	if transactions == nil {
		transactions = []model.Transaction{}
	}
	return transactions, nil
}
