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

type FineService struct {
	fineStore   FineStore
	ledgerStore LedgerStore
	userStore   UserStore
	emailSender *EmailSender
	logger      *logrus.Logger
}

func NewFineService(
	fineStore FineStore,
	ledgerStore LedgerStore,
	userStore UserStore,
	emailSender *EmailSender,
	logger *logrus.Logger,
) *FineService {
	return &FineService{
		fineStore:   fineStore,
		ledgerStore: ledgerStore,
		userStore:   userStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

// CreateFine issues a fine against a citizen. Officers set the amount and
// the payment deadline; the fine starts UNPAID.
func (s *FineService) CreateFine(ctx context.Context, issuedBy uuid.UUID, input model.CreateFineRequest) (*model.Fine, error) {
	if input.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if input.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if input.DueDate.IsZero() {
		return nil, apperr.Validation("due_date is required")
	}
	if !input.DueDate.After(time.Now()) {
		return nil, apperr.Validation("due_date must be in the future")
	}

	now := time.Now()
	fine := &model.Fine{
		ID:          uuid.New(),
		UserID:      input.UserID,
		ViolationID: input.ViolationID,
		Amount:      input.Amount,
		Status:      model.FineStatusUnpaid,
		IssuedBy:    issuedBy,
		IssuedAt:    now,
		DueDate:     input.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.fineStore.Create(ctx, fine); err != nil {
		s.logger.WithError(err).Error("Failed to create fine")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"fine_id":   fine.ID,
		"user_id":   fine.UserID,
		"amount":    fine.Amount,
		"issued_by": issuedBy,
	}).Info("Fine issued")

	return fine, nil
}

func (s *FineService) ListUserFines(ctx context.Context, userID uuid.UUID) ([]model.Fine, error) {
	fines, err := s.fineStore.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to list fines for user %s", userID)
		return nil, err
	}
	if fines == nil {
		fines = []model.Fine{}
	}
	return fines, nil
}

func (s *FineService) ListAllFines(ctx context.Context) ([]model.Fine, error) {
	fines, err := s.fineStore.ListAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list fines")
		return nil, err
	}
	if fines == nil {
		fines = []model.Fine{}
	}
	return fines, nil
}

// Dispute opens a contest against the caller's own fine. Only one dispute
// can be open per fine, and terminal fines cannot be contested.
func (s *FineService) Dispute(ctx context.Context, fineID, userID uuid.UUID, reason string) (*model.Fine, error) {
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}

	fine, err := s.fineStore.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine.UserID != userID {
		return nil, apperr.NotFound("fine not found")
	}

	dispute := &model.Dispute{
		ID:        uuid.New(),
		FineID:    fineID,
		UserID:    userID,
		Reason:    reason,
		Status:    model.DisputeStatusOpen,
		CreatedAt: time.Now(),
	}

	updated, err := s.fineStore.OpenDispute(ctx, dispute)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"fine_id":    fineID,
		"dispute_id": dispute.ID,
		"user_id":    userID,
	}).Info("Dispute opened")

	return updated, nil
}

// Pay settles the caller's own fine from the reward balance as one
// FINE_PAYMENT transaction. A disputed fine may be paid under protest; it
// stays DISPUTED until the dispute is resolved, and repeating the payment
// is a no-op.
func (s *FineService) Pay(ctx context.Context, fineID, userID uuid.UUID) (*model.Fine, error) {
	fine, err := s.fineStore.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine.UserID != userID {
		return nil, apperr.NotFound("fine not found")
	}

	txn := &model.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        model.TransactionTypeFinePayment,
		Amount:      fine.Amount,
		Description: fmt.Sprintf("Payment of fine %s", fine.ID),
		Status:      model.TransactionStatusPending,
		ReferenceID: &fine.ID,
		CreatedAt:   time.Now(),
	}

	paid, err := s.fineStore.MarkPaid(ctx, fineID, txn)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInsufficientBalance) {
			s.logger.WithFields(logrus.Fields{
				"fine_id": fineID,
				"user_id": userID,
				"amount":  fine.Amount,
			}).Warn("Fine payment exceeds reward balance")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"fine_id": fineID,
		"user_id": userID,
		"status":  paid.Status,
	}).Info("Fine paid")

	return paid, nil
}

// Resolve closes the dispute on a fine. Approving cancels the fine and, if
// it was already paid, refunds the payment as a REWARD transaction; the
// refund is issued at most once per fine. Rejecting returns the fine to its
// pre-dispute state, PAID when a payment was recorded and UNPAID otherwise.
// Resolving a fine that is not disputed is a no-op.
func (s *FineService) Resolve(ctx context.Context, fineID, resolvedBy uuid.UUID, target model.FineStatus) (*model.Fine, error) {
	if target != model.FineStatusCancelled && target != model.FineStatusUnpaid && target != model.FineStatusPaid {
		return nil, apperr.Validation("status must be CANCELLED, UNPAID or PAID")
	}

	fine, err := s.fineStore.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine.Status != model.FineStatusDisputed {
		return fine, nil
	}

	paidAmount, refunded, err := s.paymentHistory(ctx, fine)
	if err != nil {
		return nil, err
	}

	var refund *model.Transaction
	switch target {
	case model.FineStatusCancelled:
		if paidAmount > 0 && !refunded {
			refund = &model.Transaction{
				ID:          uuid.New(),
				UserID:      fine.UserID,
				Type:        model.TransactionTypeReward,
				Amount:      paidAmount,
				Description: fmt.Sprintf("Refund for cancelled fine %s", fine.ID),
				Status:      model.TransactionStatusPending,
				ReferenceID: &fine.ID,
				CreatedAt:   time.Now(),
			}
		}
	case model.FineStatusPaid:
		if paidAmount == 0 {
			return nil, apperr.Conflict("fine %s has no recorded payment", fine.ID)
		}
	case model.FineStatusUnpaid:
		if paidAmount > 0 {
			target = model.FineStatusPaid
		}
	}

	resolved, err := s.fineStore.Resolve(ctx, fineID, target, resolvedBy, refund)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to resolve dispute on fine %s", fineID)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"fine_id":     fineID,
		"status":      resolved.Status,
		"resolved_by": resolvedBy,
		"refunded":    refund != nil,
	}).Info("Dispute resolved")

	s.notifyResolution(ctx, resolved)
	return resolved, nil
}

// paymentHistory reports what the fine's ledger trail says: the total of
// completed FINE_PAYMENTs and whether a refund already went out.
func (s *FineService) paymentHistory(ctx context.Context, fine *model.Fine) (int64, bool, error) {
	transactions, err := s.ledgerStore.ListByReference(ctx, fine.UserID, fine.ID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to load payment history for fine %s", fine.ID)
		return 0, false, err
	}

	var paidAmount int64
	refunded := false
	for _, txn := range transactions {
		if txn.Status != model.TransactionStatusCompleted {
			continue
		}
		switch txn.Type {
		case model.TransactionTypeFinePayment:
			paidAmount += txn.Amount
		case model.TransactionTypeReward:
			refunded = true
		}
	}
	return paidAmount, refunded, nil
}

func (s *FineService) notifyResolution(ctx context.Context, fine *model.Fine) {
	user, err := s.userStore.GetByID(ctx, fine.UserID)
	if err != nil || user.Email == "" {
		return
	}
	go func() {
		if err := s.emailSender.SendDisputeResolutionNotification(user.Email, string(fine.Status)); err != nil {
			s.logger.WithError(err).Warn("Failed to send dispute resolution email")
		}
	}()
}
