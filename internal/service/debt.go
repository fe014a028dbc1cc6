package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type DebtService struct {
	debtStore   DebtStore
	fineStore   FineStore
	userStore   UserStore
	gateway     PaymentGateway
	emailSender *EmailSender
	logger      *logrus.Logger
}

func NewDebtService(
	debtStore DebtStore,
	fineStore FineStore,
	userStore UserStore,
	gateway PaymentGateway,
	emailSender *EmailSender,
	logger *logrus.Logger,
) *DebtService {
	return &DebtService{
		debtStore:   debtStore,
		fineStore:   fineStore,
		userStore:   userStore,
		gateway:     gateway,
		emailSender: emailSender,
		logger:      logger,
	}
}

// ListUserDebts returns the caller's debts with accrual recomputed as of
// now. The computed fees are never persisted here; that only happens at
// settlement.
func (s *DebtService) ListUserDebts(ctx context.Context, userID uuid.UUID) ([]model.OutstandingDebt, error) {
	debts, err := s.debtStore.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to list debts for user %s", userID)
		return nil, err
	}

	now := time.Now()
	for i := range debts {
		if err := debts[i].AccrueAt(now); err != nil {
			s.logger.WithError(err).Errorf("Accrual failed for debt %s", debts[i].ID)
			return nil, err
		}
	}

	if debts == nil {
		debts = []model.OutstandingDebt{}
	}
	return debts, nil
}

// InitiatePayment opens a settlement session with the external payment
// gateway for the debt's full current amount and returns the redirect URL.
func (s *DebtService) InitiatePayment(ctx context.Context, debtID, userID uuid.UUID, method string) (*model.DebtPaymentSession, error) {
	debt, err := s.ownedOutstandingDebt(ctx, debtID, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, debt.ID, debt.CurrentAmount, method)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to create gateway session for debt %s", debtID)
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"debt_id":    debtID,
		"session_id": session.SessionID,
		"amount":     session.Amount,
	}).Info("Debt payment session created")

	return session, nil
}

// ConfirmPayment verifies the gateway session and settles the debt: one
// DEBT_PAYMENT transaction for the full current amount, accrual frozen at
// the settled values. Confirming an already-paid debt is a no-op.
func (s *DebtService) ConfirmPayment(ctx context.Context, debtID, userID uuid.UUID, sessionID string) (*model.OutstandingDebt, error) {
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}

	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.UserID != userID {
		return nil, apperr.NotFound("debt not found")
	}
	if debt.Status == model.DebtStatusPaid {
		return debt, nil
	}
	if debt.Status != model.DebtStatusOutstanding {
		return nil, apperr.Conflict("debt is %s", debt.Status)
	}

	if err := debt.AccrueAt(time.Now()); err != nil {
		return nil, err
	}

	paidAmount, err := s.gateway.VerifySession(ctx, sessionID)
	if err != nil {
		s.logger.WithError(err).Errorf("Gateway verification failed for session %s", sessionID)
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if paidAmount != debt.CurrentAmount {
		return nil, apperr.Validation(
			"payment of %d does not cover the full debt amount %d", paidAmount, debt.CurrentAmount)
	}

	txn := &model.Transaction{
		ID:          uuid.New(),
		UserID:      debt.UserID,
		Type:        model.TransactionTypeDebtPayment,
		Amount:      debt.CurrentAmount,
		Description: fmt.Sprintf("Debt settlement (%d late fees)", debt.LateFees),
		Status:      model.TransactionStatusPending,
		ReferenceID: &debt.ID,
		CreatedAt:   time.Now(),
	}

	if err := s.debtStore.Settle(ctx, debt.ID, debt.LateFees, debt.CurrentAmount, txn); err != nil {
		s.logger.WithError(err).Errorf("Failed to settle debt %s", debtID)
		return nil, err
	}

	debt.Status = model.DebtStatusPaid
	now := time.Now()
	debt.SettledAt = &now

	s.notifyByEmail(ctx, debt.UserID, func(email string) error {
		return s.emailSender.SendDebtSettledNotification(email, debt.CurrentAmount)
	})

	return debt, nil
}

// Waive is the administrative override: accrual is frozen at the current
// values and the debt stops existing as an obligation.
func (s *DebtService) Waive(ctx context.Context, debtID uuid.UUID) (*model.OutstandingDebt, error) {
	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.Status == model.DebtStatusWaived {
		return debt, nil
	}
	if debt.Status != model.DebtStatusOutstanding {
		return nil, apperr.Conflict("debt is %s", debt.Status)
	}

	if err := debt.AccrueAt(time.Now()); err != nil {
		return nil, err
	}

	if err := s.debtStore.Waive(ctx, debt.ID, debt.LateFees, debt.CurrentAmount); err != nil {
		return nil, err
	}

	debt.Status = model.DebtStatusWaived
	return debt, nil
}

// ProcessOverdueFines converts each unpaid fine past its due date into one
// outstanding debt. The unique fine link keeps repeated sweeps idempotent.
func (s *DebtService) ProcessOverdueFines(ctx context.Context) error {
	fines, err := s.fineStore.ListOverdueWithoutDebt(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list overdue fines")
		return fmt.Errorf("failed to list overdue fines: %w", err)
	}

	s.logger.WithField("count", len(fines)).Info("Processing overdue fines")

	for _, fine := range fines {
		now := time.Now()
		fineID := fine.ID
		debt := &model.OutstandingDebt{
			ID:             uuid.New(),
			UserID:         fine.UserID,
			FineID:         &fineID,
			OriginalAmount: fine.Amount,
			CurrentAmount:  fine.Amount,
			DueDate:        fine.DueDate,
			Status:         model.DebtStatusOutstanding,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		created, err := s.debtStore.Create(ctx, debt)
		if err != nil {
			s.logger.WithError(err).Errorf("Failed to create debt for fine %s", fine.ID)
			continue
		}
		if !created {
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"debt_id": debt.ID,
			"fine_id": fine.ID,
			"user_id": fine.UserID,
			"amount":  fine.Amount,
		}).Info("Overdue fine converted to outstanding debt")

		s.notifyByEmail(ctx, fine.UserID, func(email string) error {
			return s.emailSender.SendDebtCreatedNotification(email, debt.OriginalAmount, debt.DueDate)
		})
	}

	return nil
}

func (s *DebtService) ownedOutstandingDebt(ctx context.Context, debtID, userID uuid.UUID) (*model.OutstandingDebt, error) {
	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.UserID != userID {
		return nil, apperr.NotFound("debt not found")
	}
	if debt.Status != model.DebtStatusOutstanding {
		return nil, apperr.Conflict("debt is %s", debt.Status)
	}
	if err := debt.AccrueAt(time.Now()); err != nil {
		return nil, err
	}
	return debt, nil
}

func (s *DebtService) notifyByEmail(ctx context.Context, userID uuid.UUID, send func(email string) error) {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil || user.Email == "" {
		return
	}
	go func() {
		if err := send(user.Email); err != nil {
			s.logger.WithError(err).Warn("Failed to send debt notification email")
		}
	}()
}
