package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type AnalyticService struct {
	ledgerStore LedgerStore
	debtStore   DebtStore
	logger      *logrus.Logger
}

func NewAnalyticService(ledgerStore LedgerStore, debtStore DebtStore, logger *logrus.Logger) *AnalyticService {
	return &AnalyticService{
		ledgerStore: ledgerStore,
		debtStore:   debtStore,
		logger:      logger,
	}
}

// GetRewardStats aggregates the user's completed transactions over a period
// into income/expense totals broken down by transaction type.
func (s *AnalyticService) GetRewardStats(
	ctx context.Context,
	userID uuid.UUID,
	startDate, endDate time.Time,
) (*model.RewardStats, error) {
	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"start_date": startDate.Format("2006-01-02"),
		"end_date":   endDate.Format("2006-01-02"),
	}).Debug("Computing reward statistics")

	if startDate.After(endDate) {
		return nil, apperr.Validation("start date cannot be after end date")
	}

	transactions, err := s.ledgerStore.ListByPeriod(ctx, userID, startDate, endDate)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load transactions for the period")
		return nil, err
	}

	stats := &model.RewardStats{
		ByType: make(map[string]model.TypeStats),
	}

	for _, txn := range transactions {
		if txn.Status != model.TransactionStatusCompleted {
			continue
		}

		key := string(txn.Type)
		typeStats := stats.ByType[key]

		if signed := txn.SignedAmount(); signed > 0 {
			stats.TotalIncome += signed
			typeStats.Income += signed
		} else {
			stats.TotalExpenses += -signed
			typeStats.Expenses += -signed
		}
		typeStats.Count++
		stats.ByType[key] = typeStats
	}

	stats.NetBalance = stats.TotalIncome - stats.TotalExpenses

	s.logger.WithFields(logrus.Fields{
		"income":       stats.TotalIncome,
		"expenses":     stats.TotalExpenses,
		"net":          stats.NetBalance,
		"transactions": len(transactions),
	}).Info("Reward statistics computed")

	return stats, nil
}

// GetDebtLoad summarizes the user's outstanding debts with accrual applied
// as of now, plus the late fees that would accrue over the next 30 days.
func (s *AnalyticService) GetDebtLoad(ctx context.Context, userID uuid.UUID) (*model.DebtLoad, error) {
	s.logger.WithField("user_id", userID).Info("Computing debt load")

	debts, err := s.debtStore.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load debts")
		return nil, err
	}

	now := time.Now()
	horizon := now.AddDate(0, 0, 30)
	load := &model.DebtLoad{}

	for i := range debts {
		if debts[i].Status != model.DebtStatusOutstanding {
			continue
		}
		if err := debts[i].AccrueAt(now); err != nil {
			return nil, err
		}

		load.OutstandingDebts++
		load.TotalOriginal += debts[i].OriginalAmount
		load.AccruedLateFees += debts[i].LateFees
		load.TotalOwed += debts[i].CurrentAmount

		projected := debts[i]
		if err := projected.AccrueAt(horizon); err != nil {
			return nil, err
		}
		load.ProjectedLateFees += projected.LateFees - debts[i].LateFees
	}

	s.logger.WithFields(logrus.Fields{
		"outstanding_debts": load.OutstandingDebts,
		"total_owed":        load.TotalOwed,
		"accrued_late_fees": load.AccruedLateFees,
	}).Info("Debt load computed")

	return load, nil
}
