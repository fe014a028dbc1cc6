package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type DebtRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewDebtRepository(db *sql.DB, logger *logrus.Logger) *DebtRepository {
	return &DebtRepository{db: db, logger: logger}
}

const debtColumns = `id, user_id, fine_id, original_amount, late_fees, current_amount,
       due_date, status, settled_at, created_at, updated_at`

func scanDebt(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.OutstandingDebt, error) {
	var d model.OutstandingDebt
	err := scanner.Scan(
		&d.ID,
		&d.UserID,
		&d.FineID,
		&d.OriginalAmount,
		&d.LateFees,
		&d.CurrentAmount,
		&d.DueDate,
		&d.Status,
		&d.SettledAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts the debt. The unique fine link makes the overdue-fine sweep
// idempotent; a duplicate reports created=false instead of an error.
func (r *DebtRepository) Create(ctx context.Context, debt *model.OutstandingDebt) (bool, error) {
	query := `
        INSERT INTO outstanding_debts (id, user_id, fine_id, original_amount, late_fees,
                                       current_amount, due_date, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (fine_id) DO NOTHING
    `

	result, err := r.db.ExecContext(
		ctx,
		query,
		debt.ID,
		debt.UserID,
		debt.FineID,
		debt.OriginalAmount,
		debt.LateFees,
		debt.CurrentAmount,
		debt.DueDate,
		debt.Status,
		debt.CreatedAt,
		debt.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create debt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *DebtRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OutstandingDebt, error) {
	query := `SELECT ` + debtColumns + ` FROM outstanding_debts WHERE id = $1`

	debt, err := scanDebt(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("debt not found")
		}
		return nil, fmt.Errorf("failed to get debt: %w", err)
	}
	return debt, nil
}

func (r *DebtRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.OutstandingDebt, error) {
	query := `
        SELECT ` + debtColumns + `
        FROM outstanding_debts
        WHERE user_id = $1
        ORDER BY due_date
    `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []model.OutstandingDebt
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, *debt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read debts: %w", err)
	}

	return debts, nil
}

// Settle marks the debt PAID with the accrual frozen at lateFees and
// currentAmount, and appends the DEBT_PAYMENT ledger transaction in the same
// database transaction.
func (r *DebtRepository) Settle(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64, txn *model.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	debt, err := r.lockDebtTx(ctx, tx, debtID)
	if err != nil {
		return err
	}
	if debt.Status != model.DebtStatusOutstanding {
		return apperr.Conflict("debt is already %s", debt.Status)
	}

	if _, err := lockBalanceTx(ctx, tx, debt.UserID); err != nil {
		return err
	}

	if err := applyTransactionTx(ctx, tx, txn); err != nil {
		return err
	}

	update := `
        UPDATE outstanding_debts
        SET late_fees = $1, current_amount = $2, status = $3, settled_at = NOW(), updated_at = NOW()
        WHERE id = $4
    `
	if _, err := tx.ExecContext(ctx, update, lateFees, currentAmount, model.DebtStatusPaid, debtID); err != nil {
		return fmt.Errorf("failed to settle debt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"debt_id":        debtID,
		"user_id":        debt.UserID,
		"current_amount": currentAmount,
		"late_fees":      lateFees,
	}).Info("Debt settled")

	return nil
}

// Waive freezes the accrual and marks the debt WAIVED without any ledger
// movement.
func (r *DebtRepository) Waive(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	debt, err := r.lockDebtTx(ctx, tx, debtID)
	if err != nil {
		return err
	}
	if debt.Status != model.DebtStatusOutstanding {
		return apperr.Conflict("debt is already %s", debt.Status)
	}

	update := `
        UPDATE outstanding_debts
        SET late_fees = $1, current_amount = $2, status = $3, settled_at = NOW(), updated_at = NOW()
        WHERE id = $4
    `
	if _, err := tx.ExecContext(ctx, update, lateFees, currentAmount, model.DebtStatusWaived, debtID); err != nil {
		return fmt.Errorf("failed to waive debt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithField("debt_id", debtID).Info("Debt waived")
	return nil
}

func (r *DebtRepository) lockDebtTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.OutstandingDebt, error) {
	query := `SELECT ` + debtColumns + ` FROM outstanding_debts WHERE id = $1 FOR UPDATE`

	debt, err := scanDebt(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("debt not found")
		}
		return nil, fmt.Errorf("failed to lock debt: %w", err)
	}
	return debt, nil
}
