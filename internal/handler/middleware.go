package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
	"traffic-finance-api/internal/service"
)

// AuthMiddleware validates the bearer token and stores the user id and role
// in the request context.
func AuthMiddleware(authService *service.AuthService, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Error("Missing Authorization header")
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Error("Malformed Authorization header")
				http.Error(w, "Malformed Authorization header", http.StatusUnauthorized)
				return
			}

			userID, role, err := authService.ParseToken(parts[1])
			if err != nil {
				logger.WithError(err).Error("Invalid token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), "userID", userID)
			ctx = context.WithValue(ctx, "role", role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose authenticated role is not in the list.
func RequireRole(logger *logrus.Logger, roles ...model.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value("role").(string)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if model.Role(role) == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WithField("role", role).Warn("Forbidden by role")
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// userIDFromContext extracts the authenticated user's id set by the
// middleware.
func userIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError maps the error taxonomy onto HTTP statuses and renders a
// machine-readable body.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindInsufficientBalance:
		status = http.StatusPaymentRequired
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindDataIntegrity:
		status = http.StatusInternalServerError
	}

	code := string(apperr.KindOf(err))
	if code == "" {
		code = "INTERNAL"
	}

	body := map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	}
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}

	respondJSON(w, status, body)
}
