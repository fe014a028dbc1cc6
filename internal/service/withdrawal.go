package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/openpgp"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type WithdrawalService struct {
	withdrawalStore WithdrawalStore
	userStore       UserStore
	emailSender     *EmailSender
	pgpKey          *openpgp.Entity
	hmacKey         []byte
	logger          *logrus.Logger
}

func NewWithdrawalService(
	withdrawalStore WithdrawalStore,
	userStore UserStore,
	emailSender *EmailSender,
	pgpKey *openpgp.Entity,
	hmacKey []byte,
	logger *logrus.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawalStore: withdrawalStore,
		userStore:       userStore,
		emailSender:     emailSender,
		pgpKey:          pgpKey,
		hmacKey:         hmacKey,
		logger:          logger,
	}
}

// Request validates and enqueues a withdrawal. The requested amount is
// reserved against the withdrawable balance the moment the request is
// accepted; no money moves until an administrator approves it.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, input model.WithdrawInput) (*model.WithdrawalRequest, error) {
	if input.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if !input.Method.Valid() {
		return nil, apperr.Validation("unknown withdrawal method %q", input.Method)
	}
	if missing := input.AccountDetails.MissingFields(input.Method); len(missing) > 0 {
		return nil, apperr.ValidationFields("missing required account details", missing)
	}

	encrypted, mac, err := s.sealDetails(input.AccountDetails)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encrypt account details")
		return nil, fmt.Errorf("failed to protect account details: %w", err)
	}

	details := input.AccountDetails
	w := &model.WithdrawalRequest{
		ID:               uuid.New(),
		UserID:           userID,
		Amount:           input.Amount,
		Method:           input.Method,
		Details:          &details,
		EncryptedDetails: encrypted,
		DetailsHMAC:      mac,
		Status:           model.WithdrawalStatusPending,
		RequestedAt:      time.Now(),
	}

	if err := s.withdrawalStore.CreateReserving(ctx, w); err != nil {
		if apperr.IsKind(err, apperr.KindInsufficientBalance) {
			s.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"amount":  input.Amount,
			}).Warn("Withdrawal request exceeds withdrawable amount")
		}
		return nil, err
	}

	return w, nil
}

// ListMine returns the caller's requests with the account details decrypted
// for display to the owner.
func (s *WithdrawalService) ListMine(ctx context.Context, userID uuid.UUID) ([]model.WithdrawalRequest, error) {
	requests, err := s.withdrawalStore.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to list withdrawals for user %s", userID)
		return nil, err
	}

	for i := range requests {
		details, err := s.openDetails(requests[i].EncryptedDetails, requests[i].DetailsHMAC)
		if err != nil {
			return nil, apperr.DataIntegrity(err, "account details of withdrawal %s failed verification", requests[i].ID)
		}
		requests[i].Details = details
	}

	if requests == nil {
		requests = []model.WithdrawalRequest{}
	}
	return requests, nil
}

// Decide applies an administrative approval or rejection. Approval appends
// the WITHDRAWAL ledger transaction and releases the reservation in one
// atomic unit; rejection only releases the reservation. Deciding an
// already-decided request is a no-op returning its current state.
func (s *WithdrawalService) Decide(ctx context.Context, id uuid.UUID, status model.WithdrawalStatus, decidedBy uuid.UUID) (*model.WithdrawalRequest, error) {
	if status != model.WithdrawalStatusApproved && status != model.WithdrawalStatusRejected {
		return nil, apperr.Validation("status must be APPROVED or REJECTED")
	}

	w, err := s.withdrawalStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalStatusPending {
		return s.withDetails(w)
	}

	var decided *model.WithdrawalRequest
	if status == model.WithdrawalStatusApproved {
		txn := &model.Transaction{
			ID:          uuid.New(),
			UserID:      w.UserID,
			Type:        model.TransactionTypeWithdrawal,
			Amount:      w.Amount,
			Description: fmt.Sprintf("Withdrawal via %s", w.Method),
			Status:      model.TransactionStatusPending,
			ReferenceID: &w.ID,
			CreatedAt:   time.Now(),
		}
		decided, err = s.withdrawalStore.Approve(ctx, id, decidedBy, txn)
	} else {
		decided, err = s.withdrawalStore.Reject(ctx, id, decidedBy)
	}
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to decide withdrawal %s", id)
		return nil, err
	}

	s.notifyDecision(ctx, decided)
	return s.withDetails(decided)
}

// withDetails decrypts the stored account details onto the request, so every
// path hands back the same shape as ListMine.
func (s *WithdrawalService) withDetails(w *model.WithdrawalRequest) (*model.WithdrawalRequest, error) {
	details, err := s.openDetails(w.EncryptedDetails, w.DetailsHMAC)
	if err != nil {
		return nil, apperr.DataIntegrity(err, "account details of withdrawal %s failed verification", w.ID)
	}
	w.Details = details
	return w, nil
}

func (s *WithdrawalService) notifyDecision(ctx context.Context, w *model.WithdrawalRequest) {
	user, err := s.userStore.GetByID(ctx, w.UserID)
	if err != nil || user.Email == "" {
		return
	}
	go func() {
		if err := s.emailSender.SendWithdrawalDecisionNotification(user.Email, w.Amount, string(w.Status)); err != nil {
			s.logger.WithError(err).Warn("Failed to send withdrawal notification email")
		}
	}()
}

// sealDetails encrypts the payout destination with the server PGP key and
// tags the plaintext with an HMAC so tampering is detectable.
func (s *WithdrawalService) sealDetails(details model.AccountDetails) (string, string, error) {
	plaintext, err := json.Marshal(details)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	writer, err := openpgp.Encrypt(&buf, []*openpgp.Entity{s.pgpKey}, nil, nil, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create encryption writer: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		writer.Close()
		return "", "", fmt.Errorf("failed to encrypt details: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", "", fmt.Errorf("failed to finalize encryption: %w", err)
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(plaintext)
	mac := fmt.Sprintf("%x", h.Sum(nil))

	return base64.StdEncoding.EncodeToString(buf.Bytes()), mac, nil
}

// openDetails decrypts stored account details and verifies the HMAC.
func (s *WithdrawalService) openDetails(encrypted, mac string) (*model.AccountDetails, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}

	md, err := openpgp.ReadMessage(bytes.NewReader(ciphertext), openpgp.EntityList{s.pgpKey}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt details: %w", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypted details: %w", err)
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(plaintext)
	if expected := fmt.Sprintf("%x", h.Sum(nil)); !hmac.Equal([]byte(expected), []byte(mac)) {
		return nil, fmt.Errorf("account details integrity check failed")
	}

	var details model.AccountDetails
	if err := json.Unmarshal(plaintext, &details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details: %w", err)
	}
	return &details, nil
}
