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

// FineHandler serves fine issuance, payment and the dispute workflow.
type FineHandler struct {
	fineService *service.FineService
	logger      *logrus.Logger
}

func NewFineHandler(fineService *service.FineService, logger *logrus.Logger) *FineHandler {
	return &FineHandler{fineService: fineService, logger: logger}
}

func (h *FineHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("",
		RequireRole(h.logger, model.RolePolice, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.CreateFine)),
	).Methods("POST")
	router.Handle("",
		RequireRole(h.logger, model.RolePolice, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.ListAll)),
	).Methods("GET")
	router.HandleFunc("/mine", h.ListMine).Methods("GET")
	router.HandleFunc("/{id}/dispute", h.Dispute).Methods("POST")
	router.HandleFunc("/{id}/pay", h.Pay).Methods("POST")
	router.Handle("/{id}",
		RequireRole(h.logger, model.RoleAdmin, model.RoleSuperAdmin)(http.HandlerFunc(h.Resolve)),
	).Methods("PATCH")
}

func (h *FineHandler) CreateFine(w http.ResponseWriter, r *http.Request) {
	issuedBy, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.CreateFineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode fine creation request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	fine, err := h.fineService.CreateFine(r.Context(), issuedBy, req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create fine")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, fine)
}

func (h *FineHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	fines, err := h.fineService.ListAllFines(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list fines")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fines)
}

func (h *FineHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fines, err := h.fineService.ListUserFines(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list fines")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fines)
}

func (h *FineHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fineID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid fine id"))
		return
	}

	var req model.DisputeFineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode dispute request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	fine, err := h.fineService.Dispute(r.Context(), fineID, userID, req.Reason)
	if err != nil {
		h.logger.WithError(err).Error("Failed to open dispute")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, fine)
}

func (h *FineHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fineID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid fine id"))
		return
	}

	fine, err := h.fineService.Pay(r.Context(), fineID, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to pay fine")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fine)
}

func (h *FineHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	resolvedBy, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fineID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.Validation("invalid fine id"))
		return
	}

	var req model.FineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode fine status request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	fine, err := h.fineService.Resolve(r.Context(), fineID, resolvedBy, req.Status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve dispute")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fine)
}
