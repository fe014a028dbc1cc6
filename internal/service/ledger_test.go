package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

func newLedgerService(store *memStore) *LedgerService {
	return NewLedgerService(ledgerView{store}, debtView{store}, testLogger())
}

func TestAppendTransactionValidation(t *testing.T) {
	svc := newLedgerService(newMemStore())
	userID := uuid.New()

	_, err := svc.AppendTransaction(context.Background(), userID, "TRANSFER", 100, "", nil)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.AppendTransaction(context.Background(), userID, model.TransactionTypeReward, 0, "", nil)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.AppendTransaction(context.Background(), userID, model.TransactionTypeReward, -500, "", nil)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestBalanceReconciliation(t *testing.T) {
	store := newMemStore()
	svc := newLedgerService(store)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.AppendTransaction(ctx, userID, model.TransactionTypeReward, 10000, "violation report accepted", nil)
	require.NoError(t, err)
	_, err = svc.AppendTransaction(ctx, userID, model.TransactionTypeBonus, 2000, "monthly top reporter", nil)
	require.NoError(t, err)
	_, err = svc.AppendTransaction(ctx, userID, model.TransactionTypePenalty, 1500, "false report", nil)
	require.NoError(t, err)
	_, err = svc.AppendTransaction(ctx, userID, model.TransactionTypeFinePayment, 3000, "", nil)
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(7500), balance.CurrentBalance)
	require.Equal(t, int64(12000), balance.TotalEarned)
	require.Equal(t, int64(1500), balance.TotalPenalties)
	require.Equal(t, int64(3000), balance.TotalFinePayments)
	require.Equal(t, int64(7500), balance.WithdrawableAmount)
}

func TestGetBalanceIncludesOutstandingDebt(t *testing.T) {
	store := newMemStore()
	svc := newLedgerService(store)
	userID := uuid.New()
	ctx := context.Background()

	dueDate := time.Now().AddDate(0, 0, -14)
	_, err := debtView{store}.Create(ctx, &model.OutstandingDebt{
		ID:             uuid.New(),
		UserID:         userID,
		OriginalAmount: 10000,
		DueDate:        dueDate,
		Status:         model.DebtStatusOutstanding,
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	// Two full weeks overdue accrues 2 x 2.5% of 10000.
	require.Equal(t, int64(10500), balance.TotalOutstandingDebt)
}

func TestGetBalanceIgnoresSettledDebt(t *testing.T) {
	store := newMemStore()
	svc := newLedgerService(store)
	userID := uuid.New()
	ctx := context.Background()

	_, err := debtView{store}.Create(ctx, &model.OutstandingDebt{
		ID:             uuid.New(),
		UserID:         userID,
		OriginalAmount: 10000,
		CurrentAmount:  10000,
		DueDate:        time.Now().AddDate(0, 0, -14),
		Status:         model.DebtStatusPaid,
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.TotalOutstandingDebt)
}

func TestListTransactionsPagination(t *testing.T) {
	store := newMemStore()
	svc := newLedgerService(store)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AppendTransaction(ctx, userID, model.TransactionTypeReward, int64(100*(i+1)), "", nil)
		require.NoError(t, err)
	}

	page1, err := svc.ListTransactions(ctx, userID, 1, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)

	page2, err := svc.ListTransactions(ctx, userID, 2, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	// Newest first: the last append is the first item.
	require.Equal(t, int64(500), page1[0].Amount)

	overRange, err := svc.ListTransactions(ctx, userID, 9, 3)
	require.NoError(t, err)
	require.Empty(t, overRange)

	_, err = svc.ListTransactions(ctx, userID, 0, 3)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.ListTransactions(ctx, userID, 1, 0)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}
