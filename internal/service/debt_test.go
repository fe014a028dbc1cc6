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

func newDebtService(store *memStore, gw PaymentGateway) *DebtService {
	return NewDebtService(
		debtView{store},
		fineView{store},
		userView{store},
		gw,
		NewEmailSender(testLogger()),
		testLogger(),
	)
}

func overdueFine(t *testing.T, store *memStore, userID uuid.UUID, amount int64, daysOverdue int) *model.Fine {
	t.Helper()
	fine := &model.Fine{
		ID:          uuid.New(),
		UserID:      userID,
		ViolationID: uuid.New(),
		Amount:      amount,
		Status:      model.FineStatusUnpaid,
		IssuedBy:    uuid.New(),
		IssuedAt:    time.Now().AddDate(0, 0, -daysOverdue-14),
		DueDate:     time.Now().AddDate(0, 0, -daysOverdue),
	}
	require.NoError(t, fineView{store}.Create(context.Background(), fine))
	return fine
}

func TestProcessOverdueFines(t *testing.T) {
	store := newMemStore()
	svc := newDebtService(store, newFakeGateway())
	userID := uuid.New()
	ctx := context.Background()

	overdue := overdueFine(t, store, userID, 10000, 3)

	// A fine not yet due and a disputed fine are both left alone.
	notDue := &model.Fine{
		ID:      uuid.New(),
		UserID:  userID,
		Amount:  5000,
		Status:  model.FineStatusUnpaid,
		DueDate: time.Now().AddDate(0, 0, 14),
	}
	require.NoError(t, fineView{store}.Create(ctx, notDue))
	disputed := &model.Fine{
		ID:      uuid.New(),
		UserID:  userID,
		Amount:  5000,
		Status:  model.FineStatusDisputed,
		DueDate: time.Now().AddDate(0, 0, -3),
	}
	require.NoError(t, fineView{store}.Create(ctx, disputed))

	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	require.Equal(t, overdue.ID, *debts[0].FineID)
	require.Equal(t, int64(10000), debts[0].OriginalAmount)
	require.Equal(t, model.DebtStatusOutstanding, debts[0].Status)
}

func TestProcessOverdueFinesIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newDebtService(store, newFakeGateway())
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 3)

	require.NoError(t, svc.ProcessOverdueFines(ctx))
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
}

func TestListUserDebtsAppliesAccrual(t *testing.T) {
	store := newMemStore()
	svc := newDebtService(store, newFakeGateway())
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 15)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	require.Equal(t, 2, debts[0].WeeksPastDue)
	require.Equal(t, int64(500), debts[0].LateFees)
	require.Equal(t, int64(10500), debts[0].CurrentAmount)
}

func TestInitiatePayment(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newDebtService(store, gw)
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 15)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	debtID := debts[0].ID

	session, err := svc.InitiatePayment(ctx, debtID, userID, "card")
	require.NoError(t, err)
	require.NotEmpty(t, session.SessionID)
	require.NotEmpty(t, session.RedirectURL)
	// The session covers the full amount with accrued late fees.
	require.Equal(t, int64(10500), session.Amount)

	_, err = svc.InitiatePayment(ctx, debtID, uuid.New(), "card")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestConfirmPaymentSettles(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newDebtService(store, gw)
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 15)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	debtID := debts[0].ID

	session, err := svc.InitiatePayment(ctx, debtID, userID, "card")
	require.NoError(t, err)

	settled, err := svc.ConfirmPayment(ctx, debtID, userID, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.DebtStatusPaid, settled.Status)
	require.NotNil(t, settled.SettledAt)
	require.Equal(t, int64(500), settled.LateFees)
	require.Equal(t, int64(10500), settled.CurrentAmount)

	// Accrual is frozen: much later, the settled values do not move.
	stored, err := debtView{store}.GetByID(ctx, debtID)
	require.NoError(t, err)
	require.NoError(t, stored.AccrueAt(time.Now().AddDate(1, 0, 0)))
	require.Equal(t, int64(500), stored.LateFees)
	require.Equal(t, int64(10500), stored.CurrentAmount)

	txns, err := ledgerView{store}.ListByReference(ctx, userID, debtID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, model.TransactionTypeDebtPayment, txns[0].Type)
	require.Equal(t, int64(10500), txns[0].Amount)
}

func TestConfirmPaymentRejectsPartial(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newDebtService(store, gw)
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 15)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	debtID := debts[0].ID

	session, err := svc.InitiatePayment(ctx, debtID, userID, "card")
	require.NoError(t, err)

	gw.overridePaid = 10000 // gateway collected less than the accrued total

	_, err = svc.ConfirmPayment(ctx, debtID, userID, session.SessionID)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	stored, err := debtView{store}.GetByID(ctx, debtID)
	require.NoError(t, err)
	require.Equal(t, model.DebtStatusOutstanding, stored.Status)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newDebtService(store, gw)
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 3)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	debtID := debts[0].ID

	session, err := svc.InitiatePayment(ctx, debtID, userID, "card")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, debtID, userID, session.SessionID)
	require.NoError(t, err)

	// Confirming again is a no-op, no second DEBT_PAYMENT.
	again, err := svc.ConfirmPayment(ctx, debtID, userID, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.DebtStatusPaid, again.Status)

	txns, err := ledgerView{store}.ListByReference(ctx, userID, debtID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
}

func TestConfirmPaymentRequiresSession(t *testing.T) {
	svc := newDebtService(newMemStore(), newFakeGateway())

	_, err := svc.ConfirmPayment(context.Background(), uuid.New(), uuid.New(), "")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestWaiveFreezesAccrual(t *testing.T) {
	store := newMemStore()
	svc := newDebtService(store, newFakeGateway())
	userID := uuid.New()
	ctx := context.Background()

	overdueFine(t, store, userID, 10000, 15)
	require.NoError(t, svc.ProcessOverdueFines(ctx))

	debts, err := svc.ListUserDebts(ctx, userID)
	require.NoError(t, err)
	debtID := debts[0].ID

	waived, err := svc.Waive(ctx, debtID)
	require.NoError(t, err)
	require.Equal(t, model.DebtStatusWaived, waived.Status)

	stored, err := debtView{store}.GetByID(ctx, debtID)
	require.NoError(t, err)
	require.Equal(t, int64(500), stored.LateFees)
	require.Equal(t, int64(10500), stored.CurrentAmount)

	// No ledger movement for a waiver.
	txns, err := ledgerView{store}.ListByReference(ctx, userID, debtID)
	require.NoError(t, err)
	require.Empty(t, txns)

	// Waiving again is a no-op.
	again, err := svc.Waive(ctx, debtID)
	require.NoError(t, err)
	require.Equal(t, model.DebtStatusWaived, again.Status)
}
