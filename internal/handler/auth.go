package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
	"traffic-finance-api/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	logger      *logrus.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signup", h.SignUp).Methods("POST")
	router.HandleFunc("/signin", h.SignIn).Methods("POST")
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var input model.SignUpInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.WithError(err).Error("Failed to decode sign-up request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := input.Validate(); err != nil {
		h.logger.WithError(err).Error("Sign-up input validation failed")
		respondError(w, apperr.Validation("%v", err))
		return
	}

	user, err := h.authService.SignUp(r.Context(), input)
	if err != nil {
		h.logger.WithError(err).Error("Failed to register user")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"role":       user.Role,
		"created_at": user.CreatedAt.Format(time.RFC3339),
	})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var input model.SignInInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.WithError(err).Error("Failed to decode sign-in request")
		respondError(w, apperr.Validation("invalid request body"))
		return
	}

	token, err := h.authService.SignIn(r.Context(), input)
	if err != nil {
		h.logger.WithError(err).Error("Sign-in failed")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
