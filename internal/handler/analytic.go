package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/service"
)

type AnalyticHandler struct {
	analyticService *service.AnalyticService
	logger          *logrus.Logger
}

func NewAnalyticHandler(analyticService *service.AnalyticService, logger *logrus.Logger) *AnalyticHandler {
	return &AnalyticHandler{analyticService: analyticService, logger: logger}
}

func (h *AnalyticHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/debt-load", h.GetDebtLoad).Methods("GET")
}

// GetSummary returns income/expense totals for the period given by the
// start_date and end_date query parameters, defaulting to the last 30 days.
func (h *AnalyticHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, apperr.Validation("start_date must be YYYY-MM-DD"))
			return
		}
		startDate = parsed
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, apperr.Validation("end_date must be YYYY-MM-DD"))
			return
		}
		endDate = parsed
	}

	stats, err := h.analyticService.GetRewardStats(r.Context(), userID, startDate, endDate)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute reward statistics")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *AnalyticHandler) GetDebtLoad(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	load, err := h.analyticService.GetDebtLoad(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute debt load")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, load)
}
