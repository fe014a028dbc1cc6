package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
	"traffic-finance-api/internal/service"
)

// RewardHandler serves the reward balance, transaction history and the
// withdrawal workflow.
type RewardHandler struct {
	ledgerService     *service.LedgerService
	withdrawalService *service.WithdrawalService
	logger            *logrus.Logger
}

func NewRewardHandler(
	ledgerService *service.LedgerService,
	withdrawalService *service.WithdrawalService,
	logger *logrus.Logger,
) *RewardHandler {
	return &RewardHandler{
		ledgerService:     ledgerService,
		withdrawalService: withdrawalService,
		logger:            logger,
	}
}

func (h *RewardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/balance", h.GetBalance).Methods("GET")
	router.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	router.Handle("/transactions",
		RequireRole(h.logger, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.AppendTransaction)),
	).Methods("POST")
	router.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	router.HandleFunc("/withdrawals", h.ListWithdrawals).Methods("GET")
	router.Handle("/withdrawals/{id}",
		RequireRole(h.logger, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.DecideWithdrawal)),
	).Methods("PATCH")
}

func (h *RewardHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.ledgerService.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get balance")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

func (h *RewardHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		respondError(w, apperr.Validation("page must be an integer"))
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, apperr.Validation("limit must be an integer"))
		return
	}

	transactions, err := h.ledgerService.ListTransactions(r.Context(), userID, page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list transactions")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, transactions)
}

// AppendTransaction lets an administrator credit or debit any account, used
// for manual rewards, bonuses and corrections. Payment and withdrawal
// transactions are written only by their own flows.
func (h *RewardHandler) AppendTransaction(w http.ResponseWriter, r *http.Request) {
	var req model.AppendTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode transaction request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	if req.UserID == uuid.Nil {
		respondError(w, apperr.Validation("user_id is required"))
		return
	}

	switch req.Type {
	case model.TransactionTypeReward, model.TransactionTypeBonus, model.TransactionTypePenalty:
	default:
		respondError(w, apperr.Validation("type must be REWARD, BONUS or PENALTY"))
		return
	}

	txn, err := h.ledgerService.AppendTransaction(
		r.Context(), req.UserID, req.Type, req.Amount, req.Description, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to append transaction")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, txn)
}

func (h *RewardHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input model.WithdrawInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.WithError(err).Error("Failed to decode withdrawal request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	request, err := h.withdrawalService.Request(r.Context(), userID, input)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create withdrawal request")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, request)
}

func (h *RewardHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.withdrawalService.ListMine(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list withdrawal requests")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, requests)
}

func (h *RewardHandler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid withdrawal id"))
		return
	}

	var req model.WithdrawalDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode withdrawal decision")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	decided, err := h.withdrawalService.Decide(r.Context(), id, req.Status, adminID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to decide withdrawal")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, decided)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
