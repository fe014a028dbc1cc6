package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/model"
)

// LedgerRepository is the single writer for transactions and balance
// aggregates. Every mutating method runs one sql.Tx that locks the user's
// balance row for its whole read-validate-write span, so two mutations for
// the same user serialize at the database.
type LedgerRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewLedgerRepository(db *sql.DB, logger *logrus.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

const balanceColumns = `user_id, current_balance, total_earned, total_penalties,
       total_fine_payments, total_debt_payments, reserved_amount, created_at, updated_at`

func scanBalance(row *sql.Row) (*model.AccountBalance, error) {
	var b model.AccountBalance
	err := row.Scan(
		&b.UserID,
		&b.CurrentBalance,
		&b.TotalEarned,
		&b.TotalPenalties,
		&b.TotalFinePayments,
		&b.TotalDebtPayments,
		&b.ReservedAmount,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Recompute()
	return &b, nil
}

// lockBalanceTx upserts a zeroed balance row for the user and locks it for
// the rest of the transaction.
func lockBalanceTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*model.AccountBalance, error) {
	upsert := `
        INSERT INTO account_balances (user_id, created_at, updated_at)
        VALUES ($1, NOW(), NOW())
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := tx.ExecContext(ctx, upsert, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	query := `SELECT ` + balanceColumns + ` FROM account_balances WHERE user_id = $1 FOR UPDATE`
	balance, err := scanBalance(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return balance, nil
}

// applyTransactionTx inserts the transaction as PENDING, applies its effect
// to the balance aggregates and marks it COMPLETED, all inside the caller's
// transaction. The caller must already hold the balance row lock.
func applyTransactionTx(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	insert := `
        INSERT INTO transactions (id, user_id, type, amount, description, status, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := tx.ExecContext(
		ctx,
		insert,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.Description,
		model.TransactionStatusPending,
		txn.ReferenceID,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	var column string
	switch txn.Type {
	case model.TransactionTypeReward, model.TransactionTypeBonus:
		column = "total_earned"
	case model.TransactionTypePenalty:
		column = "total_penalties"
	case model.TransactionTypeFinePayment:
		column = "total_fine_payments"
	case model.TransactionTypeDebtPayment:
		column = "total_debt_payments"
	}

	update := `UPDATE account_balances SET current_balance = current_balance + $1, updated_at = NOW()`
	if column != "" {
		update += fmt.Sprintf(", %s = %s + $3", column, column)
	}
	update += ` WHERE user_id = $2`

	args := []interface{}{txn.SignedAmount(), txn.UserID}
	if column != "" {
		args = append(args, txn.Amount)
	}

	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	complete := `UPDATE transactions SET status = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, complete, model.TransactionStatusCompleted, txn.ID); err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}

	txn.Status = model.TransactionStatusCompleted
	return nil
}

// Append writes one transaction and its balance effect atomically and
// returns the resulting balance.
func (r *LedgerRepository) Append(ctx context.Context, txn *model.Transaction) (*model.AccountBalance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockBalanceTx(ctx, tx, txn.UserID); err != nil {
		return nil, err
	}

	if err := applyTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	query := `SELECT ` + balanceColumns + ` FROM account_balances WHERE user_id = $1`
	balance, err := scanBalance(tx.QueryRowContext(ctx, query, txn.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"user_id":        txn.UserID,
		"type":           txn.Type,
		"amount":         txn.Amount,
	}).Info("Ledger transaction appended")

	return balance, nil
}

// GetBalance returns the user's balance, creating a zeroed row on first use.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*model.AccountBalance, error) {
	upsert := `
        INSERT INTO account_balances (user_id, created_at, updated_at)
        VALUES ($1, NOW(), NOW())
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := r.db.ExecContext(ctx, upsert, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	query := `SELECT ` + balanceColumns + ` FROM account_balances WHERE user_id = $1`
	balance, err := scanBalance(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a reverse-chronological page. Ordering ties on
// created_at break on id so pagination stays stable.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	query := `
        SELECT id, user_id, type, amount, description, status, reference_id, created_at
        FROM transactions
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3
    `

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByReference returns the user's transactions linked to a fine, debt or
// withdrawal.
func (r *LedgerRepository) ListByReference(ctx context.Context, userID, referenceID uuid.UUID) ([]model.Transaction, error) {
	query := `
        SELECT id, user_id, type, amount, description, status, reference_id, created_at
        FROM transactions
        WHERE user_id = $1 AND reference_id = $2
        ORDER BY created_at DESC, id DESC
    `

	rows, err := r.db.QueryContext(ctx, query, userID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by reference: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByPeriod returns the user's transactions over a period, end exclusive.
func (r *LedgerRepository) ListByPeriod(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]model.Transaction, error) {
	r.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"start_date": startDate.Format("2006-01-02"),
		"end_date":   endDate.Format("2006-01-02"),
	}).Debug("Querying transactions for period")

	query := `
        SELECT id, user_id, type, amount, description, status, reference_id, created_at
        FROM transactions
        WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
        ORDER BY created_at DESC, id DESC
    `

	rows, err := r.db.QueryContext(ctx, query, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by period: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.Description,
			&txn.Status,
			&txn.ReferenceID,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return transactions, nil
}
