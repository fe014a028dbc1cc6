package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type WithdrawalRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewWithdrawalRepository(db *sql.DB, logger *logrus.Logger) *WithdrawalRepository {
	return &WithdrawalRepository{db: db, logger: logger}
}

const withdrawalColumns = `id, user_id, amount, method, encrypted_details, details_hmac,
       status, requested_at, decided_at, decided_by`

func scanWithdrawal(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	err := scanner.Scan(
		&w.ID,
		&w.UserID,
		&w.Amount,
		&w.Method,
		&w.EncryptedDetails,
		&w.DetailsHMAC,
		&w.Status,
		&w.RequestedAt,
		&w.DecidedAt,
		&w.DecidedBy,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateReserving inserts the request and reserves its amount against the
// withdrawable balance in one transaction. The balance row lock makes two
// concurrent requests for the same funds serialize; the loser sees the
// reservation and fails.
func (r *WithdrawalRepository) CreateReserving(ctx context.Context, w *model.WithdrawalRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := lockBalanceTx(ctx, tx, w.UserID)
	if err != nil {
		return err
	}

	if w.Amount > balance.WithdrawableAmount {
		return apperr.InsufficientBalance(
			"requested %d exceeds withdrawable amount %d", w.Amount, balance.WithdrawableAmount)
	}

	insert := `
        INSERT INTO withdrawal_requests (id, user_id, amount, method, encrypted_details,
                                         details_hmac, status, requested_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = tx.ExecContext(
		ctx,
		insert,
		w.ID,
		w.UserID,
		w.Amount,
		w.Method,
		w.EncryptedDetails,
		w.DetailsHMAC,
		w.Status,
		w.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	reserve := `
        UPDATE account_balances
        SET reserved_amount = reserved_amount + $1, updated_at = NOW()
        WHERE user_id = $2
    `
	if _, err := tx.ExecContext(ctx, reserve, w.Amount, w.UserID); err != nil {
		return fmt.Errorf("failed to reserve amount: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
		"amount":        w.Amount,
		"method":        w.Method,
	}).Info("Withdrawal request created, amount reserved")

	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	w, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("withdrawal request not found")
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WithdrawalRequest, error) {
	query := `
        SELECT ` + withdrawalColumns + `
        FROM withdrawal_requests
        WHERE user_id = $1
        ORDER BY requested_at DESC
    `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal requests: %w", err)
	}
	defer rows.Close()

	var requests []model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		requests = append(requests, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read withdrawal requests: %w", err)
	}

	return requests, nil
}

// Approve settles a pending request: it appends the WITHDRAWAL ledger
// transaction, releases the reservation and flips the status, atomically.
// An already-decided request is returned unchanged.
func (r *WithdrawalRepository) Approve(ctx context.Context, id, decidedBy uuid.UUID, txn *model.Transaction) (*model.WithdrawalRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	w, err := r.lockRequestTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalStatusPending {
		return w, nil
	}

	if _, err := lockBalanceTx(ctx, tx, w.UserID); err != nil {
		return nil, err
	}

	if err := applyTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := r.releaseReservationTx(ctx, tx, w.UserID, w.Amount); err != nil {
		return nil, err
	}

	if err := r.decideTx(ctx, tx, w, model.WithdrawalStatusApproved, decidedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
		"amount":        w.Amount,
	}).Info("Withdrawal request approved")

	return w, nil
}

// Reject releases the reservation without touching the ledger.
func (r *WithdrawalRepository) Reject(ctx context.Context, id, decidedBy uuid.UUID) (*model.WithdrawalRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	w, err := r.lockRequestTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalStatusPending {
		return w, nil
	}

	if _, err := lockBalanceTx(ctx, tx, w.UserID); err != nil {
		return nil, err
	}

	if err := r.releaseReservationTx(ctx, tx, w.UserID, w.Amount); err != nil {
		return nil, err
	}

	if err := r.decideTx(ctx, tx, w, model.WithdrawalStatusRejected, decidedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
	}).Info("Withdrawal request rejected, reservation released")

	return w, nil
}

func (r *WithdrawalRepository) lockRequestTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("withdrawal request not found")
		}
		return nil, fmt.Errorf("failed to lock withdrawal request: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) releaseReservationTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount int64) error {
	query := `
        UPDATE account_balances
        SET reserved_amount = reserved_amount - $1, updated_at = NOW()
        WHERE user_id = $2
    `
	if _, err := tx.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) decideTx(ctx context.Context, tx *sql.Tx, w *model.WithdrawalRequest, status model.WithdrawalStatus, decidedBy uuid.UUID) error {
	now := time.Now()
	query := `
        UPDATE withdrawal_requests
        SET status = $1, decided_at = $2, decided_by = $3
        WHERE id = $4
    `
	if _, err := tx.ExecContext(ctx, query, status, now, decidedBy, w.ID); err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}

	w.Status = status
	w.DecidedAt = &now
	w.DecidedBy = &decidedBy
	return nil
}
