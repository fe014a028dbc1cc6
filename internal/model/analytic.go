package model

// TypeStats aggregates completed transactions of one type over a period.
type TypeStats struct {
	Income   int64 `json:"income"`
	Expenses int64 `json:"expenses"`
	Count    int   `json:"count"`
}

type RewardStats struct {
	TotalIncome   int64                `json:"total_income"`
	TotalExpenses int64                `json:"total_expenses"`
	NetBalance    int64                `json:"net_balance"`
	ByType        map[string]TypeStats `json:"by_type"`
}

// DebtLoad summarizes the caller's outstanding debt with accrual applied.
type DebtLoad struct {
	OutstandingDebts  int   `json:"outstanding_debts"`
	TotalOriginal     int64 `json:"total_original"`
	AccruedLateFees   int64 `json:"accrued_late_fees"`
	TotalOwed         int64 `json:"total_owed"`
	ProjectedLateFees int64 `json:"projected_late_fees_30d"`
}
