package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type FineRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewFineRepository(db *sql.DB, logger *logrus.Logger) *FineRepository {
	return &FineRepository{db: db, logger: logger}
}

const fineColumns = `id, user_id, violation_id, amount, status, issued_by, issued_at,
       due_date, created_at, updated_at`

func scanFine(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Fine, error) {
	var f model.Fine
	err := scanner.Scan(
		&f.ID,
		&f.UserID,
		&f.ViolationID,
		&f.Amount,
		&f.Status,
		&f.IssuedBy,
		&f.IssuedAt,
		&f.DueDate,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FineRepository) Create(ctx context.Context, fine *model.Fine) error {
	query := `
        INSERT INTO fines (id, user_id, violation_id, amount, status, issued_by,
                           issued_at, due_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := r.db.ExecContext(
		ctx,
		query,
		fine.ID,
		fine.UserID,
		fine.ViolationID,
		fine.Amount,
		fine.Status,
		fine.IssuedBy,
		fine.IssuedAt,
		fine.DueDate,
		fine.CreatedAt,
		fine.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code.Name() == "foreign_key_violation" {
				return apperr.NotFound("user not found")
			}
		}
		return fmt.Errorf("failed to create fine: %w", err)
	}

	return nil
}

func (r *FineRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE id = $1`

	fine, err := scanFine(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("fine not found")
		}
		return nil, fmt.Errorf("failed to get fine: %w", err)
	}
	return fine, nil
}

func (r *FineRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Fine, error) {
	query := `
        SELECT ` + fineColumns + `
        FROM fines
        WHERE user_id = $1
        ORDER BY issued_at DESC
    `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fines: %w", err)
	}
	defer rows.Close()

	return collectFines(rows)
}

func (r *FineRepository) ListAll(ctx context.Context) ([]model.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines ORDER BY issued_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fines: %w", err)
	}
	defer rows.Close()

	return collectFines(rows)
}

// ListOverdueWithoutDebt returns UNPAID fines past due that have not been
// converted into an outstanding debt yet. Disputed fines are excluded:
// enforcement is suspended while a dispute is open.
func (r *FineRepository) ListOverdueWithoutDebt(ctx context.Context, asOf time.Time) ([]model.Fine, error) {
	query := `
        SELECT ` + fineColumns + `
        FROM fines f
        WHERE f.status = $1
          AND f.due_date < $2
          AND NOT EXISTS (SELECT 1 FROM outstanding_debts d WHERE d.fine_id = f.id)
        ORDER BY f.due_date
    `

	rows, err := r.db.QueryContext(ctx, query, model.FineStatusUnpaid, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue fines: %w", err)
	}
	defer rows.Close()

	return collectFines(rows)
}

func collectFines(rows *sql.Rows) ([]model.Fine, error) {
	var fines []model.Fine
	for rows.Next() {
		fine, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fine: %w", err)
		}
		fines = append(fines, *fine)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fines: %w", err)
	}

	return fines, nil
}

// OpenDispute moves an UNPAID fine to DISPUTED and records the dispute. The
// fine row lock plus the open-dispute check reject a second dispute while
// one is in flight.
func (r *FineRepository) OpenDispute(ctx context.Context, dispute *model.Dispute) (*model.Fine, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fine, err := r.lockFineTx(ctx, tx, dispute.FineID)
	if err != nil {
		return nil, err
	}

	if fine.Status == model.FineStatusDisputed {
		return nil, apperr.Conflict("a dispute is already open for this fine")
	}
	if fine.Status != model.FineStatusUnpaid {
		return nil, apperr.Conflict("fine is %s and cannot be disputed", fine.Status)
	}

	var openExists bool
	check := `SELECT EXISTS(SELECT 1 FROM disputes WHERE fine_id = $1 AND status = $2)`
	if err := tx.QueryRowContext(ctx, check, fine.ID, model.DisputeStatusOpen).Scan(&openExists); err != nil {
		return nil, fmt.Errorf("failed to check open disputes: %w", err)
	}
	if openExists {
		return nil, apperr.Conflict("a dispute is already open for this fine")
	}

	insert := `
        INSERT INTO disputes (id, fine_id, user_id, reason, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = tx.ExecContext(
		ctx,
		insert,
		dispute.ID,
		dispute.FineID,
		dispute.UserID,
		dispute.Reason,
		dispute.Status,
		dispute.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	if err := r.updateFineStatusTx(ctx, tx, fine, model.FineStatusDisputed); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"fine_id":    fine.ID,
		"dispute_id": dispute.ID,
		"user_id":    dispute.UserID,
	}).Info("Dispute opened")

	return fine, nil
}

// Resolve closes the open dispute of a DISPUTED fine, moves the fine to the
// target status and, when a refund transaction is supplied, appends it in the
// same database transaction. A fine that is no longer DISPUTED is returned
// unchanged: resolution is idempotent.
func (r *FineRepository) Resolve(ctx context.Context, fineID uuid.UUID, target model.FineStatus, actor uuid.UUID, refund *model.Transaction) (*model.Fine, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fine, err := r.lockFineTx(ctx, tx, fineID)
	if err != nil {
		return nil, err
	}

	if fine.Status != model.FineStatusDisputed {
		return fine, nil
	}

	disputeStatus := model.DisputeStatusRejected
	if target == model.FineStatusCancelled {
		disputeStatus = model.DisputeStatusApproved
	}

	closeDispute := `
        UPDATE disputes
        SET status = $1, resolved_at = NOW(), resolved_by = $2
        WHERE fine_id = $3 AND status = $4
    `
	if _, err := tx.ExecContext(ctx, closeDispute, disputeStatus, actor, fineID, model.DisputeStatusOpen); err != nil {
		return nil, fmt.Errorf("failed to close dispute: %w", err)
	}

	if refund != nil {
		if _, err := lockBalanceTx(ctx, tx, fine.UserID); err != nil {
			return nil, err
		}
		if err := applyTransactionTx(ctx, tx, refund); err != nil {
			return nil, err
		}
	}

	if err := r.updateFineStatusTx(ctx, tx, fine, target); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"fine_id":  fineID,
		"status":   target,
		"actor":    actor,
		"refunded": refund != nil,
	}).Info("Dispute resolved")

	return fine, nil
}

// MarkPaid records a FINE_PAYMENT from the user's reward balance. A fine
// under dispute keeps the DISPUTED status; the payment is held until the
// dispute resolves. An already-paid fine, including one paid under protest,
// is returned unchanged.
func (r *FineRepository) MarkPaid(ctx context.Context, fineID uuid.UUID, txn *model.Transaction) (*model.Fine, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fine, err := r.lockFineTx(ctx, tx, fineID)
	if err != nil {
		return nil, err
	}

	if fine.Status == model.FineStatusPaid {
		return fine, nil
	}
	if fine.Status == model.FineStatusCancelled {
		return nil, apperr.Conflict("fine is cancelled")
	}

	// A DISPUTED fine does not change status on payment, so the ledger trail
	// is the only record that it was already settled.
	if fine.Status == model.FineStatusDisputed {
		var alreadyPaid bool
		check := `
            SELECT EXISTS(
                SELECT 1 FROM transactions
                WHERE reference_id = $1 AND type = $2 AND status = $3
            )
        `
		err := tx.QueryRowContext(
			ctx, check, fine.ID, model.TransactionTypeFinePayment, model.TransactionStatusCompleted,
		).Scan(&alreadyPaid)
		if err != nil {
			return nil, fmt.Errorf("failed to check recorded payments: %w", err)
		}
		if alreadyPaid {
			return fine, nil
		}
	}

	balance, err := lockBalanceTx(ctx, tx, fine.UserID)
	if err != nil {
		return nil, err
	}
	if balance.CurrentBalance < txn.Amount {
		return nil, apperr.InsufficientBalance(
			"fine amount %d exceeds current balance %d", txn.Amount, balance.CurrentBalance)
	}

	if err := applyTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	if fine.Status == model.FineStatusUnpaid {
		if err := r.updateFineStatusTx(ctx, tx, fine, model.FineStatusPaid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"fine_id": fineID,
		"user_id": fine.UserID,
		"amount":  txn.Amount,
		"status":  fine.Status,
	}).Info("Fine payment recorded")

	return fine, nil
}

func (r *FineRepository) lockFineTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE id = $1 FOR UPDATE`

	fine, err := scanFine(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("fine not found")
		}
		return nil, fmt.Errorf("failed to lock fine: %w", err)
	}
	return fine, nil
}

func (r *FineRepository) updateFineStatusTx(ctx context.Context, tx *sql.Tx, fine *model.Fine, status model.FineStatus) error {
	query := `UPDATE fines SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, status, fine.ID); err != nil {
		return fmt.Errorf("failed to update fine status: %w", err)
	}
	fine.Status = status
	return nil
}
