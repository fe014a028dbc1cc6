package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

// memStore is an in-memory implementation of the store interfaces with the
// same atomicity and error semantics as the Postgres repositories: one mutex
// plays the role of the balance row lock.
type memStore struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]*model.AccountBalance
	transactions []model.Transaction
	withdrawals  map[uuid.UUID]*model.WithdrawalRequest
	debts        map[uuid.UUID]*model.OutstandingDebt
	debtsByFine  map[uuid.UUID]bool
	fines        map[uuid.UUID]*model.Fine
	disputes     map[uuid.UUID]*model.Dispute
	users        map[uuid.UUID]*model.User
}

func newMemStore() *memStore {
	return &memStore{
		balances:    make(map[uuid.UUID]*model.AccountBalance),
		withdrawals: make(map[uuid.UUID]*model.WithdrawalRequest),
		debts:       make(map[uuid.UUID]*model.OutstandingDebt),
		debtsByFine: make(map[uuid.UUID]bool),
		fines:       make(map[uuid.UUID]*model.Fine),
		disputes:    make(map[uuid.UUID]*model.Dispute),
		users:       make(map[uuid.UUID]*model.User),
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func (m *memStore) ensureBalance(userID uuid.UUID) *model.AccountBalance {
	b, ok := m.balances[userID]
	if !ok {
		now := time.Now()
		b = &model.AccountBalance{UserID: userID, CreatedAt: now, UpdatedAt: now}
		m.balances[userID] = b
	}
	return b
}

// apply mirrors the repository: insert the transaction, adjust the balance
// aggregates and mark it COMPLETED. Caller holds the mutex.
func (m *memStore) apply(txn *model.Transaction) {
	b := m.ensureBalance(txn.UserID)
	b.CurrentBalance += txn.SignedAmount()
	switch txn.Type {
	case model.TransactionTypeReward, model.TransactionTypeBonus:
		b.TotalEarned += txn.Amount
	case model.TransactionTypePenalty:
		b.TotalPenalties += txn.Amount
	case model.TransactionTypeFinePayment:
		b.TotalFinePayments += txn.Amount
	case model.TransactionTypeDebtPayment:
		b.TotalDebtPayments += txn.Amount
	}
	b.UpdatedAt = time.Now()

	txn.Status = model.TransactionStatusCompleted
	m.transactions = append(m.transactions, *txn)
}

func (m *memStore) balanceCopy(userID uuid.UUID) *model.AccountBalance {
	b := *m.ensureBalance(userID)
	b.Recompute()
	return &b
}

// LedgerStore

func (m *memStore) Append(ctx context.Context, txn *model.Transaction) (*model.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(txn)
	return m.balanceCopy(txn.UserID), nil
}

func (m *memStore) GetBalance(ctx context.Context, userID uuid.UUID) (*model.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceCopy(userID), nil
}

func (m *memStore) userTransactions(userID uuid.UUID) []model.Transaction {
	var out []model.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].UserID == userID {
			out = append(out, m.transactions[i])
		}
	}
	return out
}

func (m *memStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.userTransactions(userID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memStore) ListByReference(ctx context.Context, userID, referenceID uuid.UUID) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Transaction
	for _, txn := range m.userTransactions(userID) {
		if txn.ReferenceID != nil && *txn.ReferenceID == referenceID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memStore) ListByPeriod(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Transaction
	for _, txn := range m.userTransactions(userID) {
		if !txn.CreatedAt.Before(startDate) && txn.CreatedAt.Before(endDate) {
			out = append(out, txn)
		}
	}
	return out, nil
}

// WithdrawalStore

func (m *memStore) CreateReserving(ctx context.Context, w *model.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureBalance(w.UserID)
	b.Recompute()
	if w.Amount > b.WithdrawableAmount {
		return apperr.InsufficientBalance(
			"requested %d exceeds withdrawable amount %d", w.Amount, b.WithdrawableAmount)
	}

	b.ReservedAmount += w.Amount
	stored := *w
	// Only the encrypted form is persisted, as in the database.
	stored.Details = nil
	m.withdrawals[w.ID] = &stored
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal request not found")
	}
	copied := *w
	return &copied, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.WithdrawalRequest
	for _, w := range m.withdrawals {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memStore) Approve(ctx context.Context, id, decidedBy uuid.UUID, txn *model.Transaction) (*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal request not found")
	}
	if w.Status != model.WithdrawalStatusPending {
		copied := *w
		return &copied, nil
	}

	m.apply(txn)
	m.ensureBalance(w.UserID).ReservedAmount -= w.Amount
	m.decide(w, model.WithdrawalStatusApproved, decidedBy)

	copied := *w
	return &copied, nil
}

func (m *memStore) Reject(ctx context.Context, id, decidedBy uuid.UUID) (*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal request not found")
	}
	if w.Status != model.WithdrawalStatusPending {
		copied := *w
		return &copied, nil
	}

	m.ensureBalance(w.UserID).ReservedAmount -= w.Amount
	m.decide(w, model.WithdrawalStatusRejected, decidedBy)

	copied := *w
	return &copied, nil
}

func (m *memStore) decide(w *model.WithdrawalRequest, status model.WithdrawalStatus, decidedBy uuid.UUID) {
	now := time.Now()
	w.Status = status
	w.DecidedAt = &now
	w.DecidedBy = &decidedBy
}

// DebtStore

func (m *memStore) Create(ctx context.Context, debt *model.OutstandingDebt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if debt.FineID != nil {
		if m.debtsByFine[*debt.FineID] {
			return false, nil
		}
		m.debtsByFine[*debt.FineID] = true
	}

	stored := *debt
	m.debts[debt.ID] = &stored
	return true, nil
}

func (m *memStore) getDebt(id uuid.UUID) (*model.OutstandingDebt, error) {
	d, ok := m.debts[id]
	if !ok {
		return nil, apperr.NotFound("debt not found")
	}
	return d, nil
}

func (m *memStore) GetDebtByID(ctx context.Context, id uuid.UUID) (*model.OutstandingDebt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.getDebt(id)
	if err != nil {
		return nil, err
	}
	copied := *d
	return &copied, nil
}

func (m *memStore) ListDebtsByUser(ctx context.Context, userID uuid.UUID) ([]model.OutstandingDebt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.OutstandingDebt
	for _, d := range m.debts {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) Settle(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64, txn *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.getDebt(debtID)
	if err != nil {
		return err
	}
	if d.Status != model.DebtStatusOutstanding {
		return apperr.Conflict("debt is %s", d.Status)
	}

	m.apply(txn)

	now := time.Now()
	d.LateFees = lateFees
	d.CurrentAmount = currentAmount
	d.Status = model.DebtStatusPaid
	d.SettledAt = &now
	d.UpdatedAt = now
	return nil
}

func (m *memStore) Waive(ctx context.Context, debtID uuid.UUID, lateFees, currentAmount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.getDebt(debtID)
	if err != nil {
		return err
	}
	if d.Status != model.DebtStatusOutstanding {
		return apperr.Conflict("debt is %s", d.Status)
	}

	d.LateFees = lateFees
	d.CurrentAmount = currentAmount
	d.Status = model.DebtStatusWaived
	d.UpdatedAt = time.Now()
	return nil
}

// FineStore

func (m *memStore) CreateFine(ctx context.Context, fine *model.Fine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *fine
	m.fines[fine.ID] = &stored
	return nil
}

func (m *memStore) getFine(id uuid.UUID) (*model.Fine, error) {
	f, ok := m.fines[id]
	if !ok {
		return nil, apperr.NotFound("fine not found")
	}
	return f, nil
}

func (m *memStore) GetFineByID(ctx context.Context, id uuid.UUID) (*model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getFine(id)
	if err != nil {
		return nil, err
	}
	copied := *f
	return &copied, nil
}

func (m *memStore) ListFinesByUser(ctx context.Context, userID uuid.UUID) ([]model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Fine
	for _, f := range m.fines {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memStore) ListAllFines(ctx context.Context) ([]model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Fine
	for _, f := range m.fines {
		out = append(out, *f)
	}
	return out, nil
}

func (m *memStore) ListOverdueWithoutDebt(ctx context.Context, asOf time.Time) ([]model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Fine
	for _, f := range m.fines {
		if f.Status == model.FineStatusUnpaid && f.DueDate.Before(asOf) && !m.debtsByFine[f.ID] {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memStore) OpenDispute(ctx context.Context, dispute *model.Dispute) (*model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getFine(dispute.FineID)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FineStatusDisputed {
		return nil, apperr.Conflict("a dispute is already open for this fine")
	}
	if f.Status != model.FineStatusUnpaid {
		return nil, apperr.Conflict("fine is %s and cannot be disputed", f.Status)
	}

	stored := *dispute
	m.disputes[dispute.ID] = &stored
	f.Status = model.FineStatusDisputed
	f.UpdatedAt = time.Now()

	copied := *f
	return &copied, nil
}

func (m *memStore) Resolve(ctx context.Context, fineID uuid.UUID, target model.FineStatus, actor uuid.UUID, refund *model.Transaction) (*model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getFine(fineID)
	if err != nil {
		return nil, err
	}
	if f.Status != model.FineStatusDisputed {
		copied := *f
		return &copied, nil
	}

	disputeStatus := model.DisputeStatusRejected
	if target == model.FineStatusCancelled {
		disputeStatus = model.DisputeStatusApproved
	}
	now := time.Now()
	for _, d := range m.disputes {
		if d.FineID == fineID && d.Status == model.DisputeStatusOpen {
			d.Status = disputeStatus
			d.ResolvedAt = &now
			d.ResolvedBy = &actor
		}
	}

	if refund != nil {
		m.apply(refund)
	}

	f.Status = target
	f.UpdatedAt = now

	copied := *f
	return &copied, nil
}

func (m *memStore) MarkPaid(ctx context.Context, fineID uuid.UUID, txn *model.Transaction) (*model.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getFine(fineID)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FineStatusPaid {
		copied := *f
		return &copied, nil
	}
	if f.Status == model.FineStatusCancelled {
		return nil, apperr.Conflict("fine is cancelled")
	}
	if f.Status == model.FineStatusDisputed {
		for _, recorded := range m.transactions {
			if recorded.ReferenceID != nil && *recorded.ReferenceID == fineID &&
				recorded.Type == model.TransactionTypeFinePayment &&
				recorded.Status == model.TransactionStatusCompleted {
				copied := *f
				return &copied, nil
			}
		}
	}

	b := m.ensureBalance(f.UserID)
	if b.CurrentBalance < txn.Amount {
		return nil, apperr.InsufficientBalance(
			"fine amount %d exceeds current balance %d", txn.Amount, b.CurrentBalance)
	}

	m.apply(txn)

	if f.Status == model.FineStatusUnpaid {
		f.Status = model.FineStatusPaid
	}
	f.UpdatedAt = time.Now()

	copied := *f
	return &copied, nil
}

// UserStore

func (m *memStore) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// View adapters: the interfaces overlap on method names (GetByID, ListByUser,
// Create), so each store interface gets a narrow view over the shared state.

type ledgerView struct{ *memStore }

type withdrawalView struct{ *memStore }

type debtView struct{ *memStore }

func (v debtView) Create(ctx context.Context, debt *model.OutstandingDebt) (bool, error) {
	return v.memStore.Create(ctx, debt)
}

func (v debtView) GetByID(ctx context.Context, id uuid.UUID) (*model.OutstandingDebt, error) {
	return v.memStore.GetDebtByID(ctx, id)
}

func (v debtView) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.OutstandingDebt, error) {
	return v.memStore.ListDebtsByUser(ctx, userID)
}

type fineView struct{ *memStore }

func (v fineView) Create(ctx context.Context, fine *model.Fine) error {
	return v.memStore.CreateFine(ctx, fine)
}

func (v fineView) GetByID(ctx context.Context, id uuid.UUID) (*model.Fine, error) {
	return v.memStore.GetFineByID(ctx, id)
}

func (v fineView) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Fine, error) {
	return v.memStore.ListFinesByUser(ctx, userID)
}

func (v fineView) ListAll(ctx context.Context) ([]model.Fine, error) {
	return v.memStore.ListAllFines(ctx)
}

type userView struct{ *memStore }

func (v userView) Create(ctx context.Context, user *model.User) error {
	return v.memStore.CreateUser(ctx, user)
}

func (v userView) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return v.memStore.GetUserByID(ctx, id)
}

// fakeGateway records sessions and reports the configured paid amount on
// verification.
type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]int64
	next     int
	// overridePaid, when non-zero, is reported instead of the session amount.
	overridePaid int64
	failVerify   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]int64)}
}

func (g *fakeGateway) CreateSession(ctx context.Context, debtID uuid.UUID, amount int64, method string) (*model.DebtPaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next++
	sessionID := fmt.Sprintf("sess-%d", g.next)
	g.sessions[sessionID] = amount

	return &model.DebtPaymentSession{
		SessionID:   sessionID,
		RedirectURL: "https://gateway.example.com/pay/" + sessionID,
		Amount:      amount,
	}, nil
}

func (g *fakeGateway) VerifySession(ctx context.Context, sessionID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failVerify {
		return 0, fmt.Errorf("session %s is not completed", sessionID)
	}
	amount, ok := g.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("unknown session %s", sessionID)
	}
	if g.overridePaid != 0 {
		return g.overridePaid, nil
	}
	return amount, nil
}
