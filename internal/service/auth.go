package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

type AuthService struct {
	userStore   UserStore
	jwtSecret   string
	tokenExpiry time.Duration
	logger      *logrus.Logger
}

// Claims carries the user role so authorization decisions happen
// server-side on every request, never in the client.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(userStore UserStore, jwtSecret string, tokenExpiry time.Duration, logger *logrus.Logger) *AuthService {
	return &AuthService{
		userStore:   userStore,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

// SignUp registers a new citizen account. Elevated roles are provisioned
// out of band, never through the public endpoint.
func (s *AuthService) SignUp(ctx context.Context, input model.SignUpInput) (*model.User, error) {
	s.logger.WithFields(logrus.Fields{
		"email":    input.Email,
		"username": input.Username,
	}).Info("Registering new user")

	exists, err := s.userStore.ExistsByEmailOrUsername(ctx, input.Email, input.Username)
	if err != nil {
		s.logger.WithError(err).Error("Failed to check user existence")
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("a user with this email or username already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New(),
		Username:  input.Username,
		Email:     input.Email,
		Password:  string(hashedPassword),
		Role:      model.RoleCitizen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userStore.Create(ctx, user); err != nil {
		s.logger.WithError(err).Error("Failed to create user")
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// SignIn verifies the credentials and issues a JWT.
func (s *AuthService) SignIn(ctx context.Context, input model.SignInInput) (string, error) {
	s.logger.WithField("email", input.Email).Info("User sign-in attempt")

	user, err := s.userStore.FindByEmail(ctx, input.Email)
	if err != nil {
		s.logger.WithError(err).Warn("User not found or invalid credentials")
		return "", apperr.Validation("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		s.logger.Warn("Wrong password on sign-in")
		return "", apperr.Validation("invalid credentials")
	}

	token, err := s.GenerateJWTToken(user.ID.String(), string(user.Role))
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate JWT token")
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("User signed in")
	return token, nil
}

// GenerateJWTToken issues a signed token carrying the user id and role.
func (s *AuthService) GenerateJWTToken(userID, role string) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken validates the token and returns the user id and role.
func (s *AuthService) ParseToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		s.logger.WithError(err).Warn("Invalid JWT token")
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	if claims.Subject == "" {
		return "", "", fmt.Errorf("token has no subject claim")
	}

	return claims.Subject, claims.Role, nil
}
