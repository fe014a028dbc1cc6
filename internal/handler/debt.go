package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
	"traffic-finance-api/internal/service"
)

type DebtHandler struct {
	debtService *service.DebtService
	logger      *logrus.Logger
}

func NewDebtHandler(debtService *service.DebtService, logger *logrus.Logger) *DebtHandler {
	return &DebtHandler{debtService: debtService, logger: logger}
}

func (h *DebtHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/mine", h.ListMine).Methods("GET")
	router.HandleFunc("/{id}/pay", h.InitiatePayment).Methods("POST")
	router.HandleFunc("/{id}/confirm", h.ConfirmPayment).Methods("POST")
	router.Handle("/{id}",
		RequireRole(h.logger, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.UpdateStatus)),
	).Methods("PATCH")
}

func (h *DebtHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	debts, err := h.debtService.ListUserDebts(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list debts")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, debts)
}

func (h *DebtHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	debtID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid debt id"))
		return
	}

	var req model.DebtPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode debt payment request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	session, err := h.debtService.InitiatePayment(r.Context(), debtID, userID, req.PaymentMethod)
	if err != nil {
		h.logger.WithError(err).Error("Failed to initiate debt payment")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (h *DebtHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	debtID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid debt id"))
		return
	}

	var req model.DebtPaymentConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode payment confirmation")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	debt, err := h.debtService.ConfirmPayment(r.Context(), debtID, userID, req.SessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to confirm debt payment")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, debt)
}

// UpdateStatus handles the administrative waiver. WAIVED is the only status
// an administrator may set directly; settlement goes through the gateway.
func (h *DebtHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	debtID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid debt id"))
		return
	}

	var req model.DebtStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode debt status request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	if req.Status != model.DebtStatusWaived {
		respondError(w, apperr.Validation("status can only be set to WAIVED"))
		return
	}

	debt, err := h.debtService.Waive(r.Context(), debtID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to waive debt")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, debt)
}
