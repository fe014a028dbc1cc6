package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"traffic-finance-api/internal/apperr"
	"traffic-finance-api/internal/model"
)

func newAuthService(store *memStore) *AuthService {
	return NewAuthService(userView{store}, "test-secret", time.Hour, testLogger())
}

func TestSignUpAndSignIn(t *testing.T) {
	store := newMemStore()
	svc := newAuthService(store)
	ctx := context.Background()

	input := model.SignUpInput{
		Username: "citizen1",
		Email:    "citizen@example.com",
		Password: "Sup3r$ecret",
	}

	user, err := svc.SignUp(ctx, input)
	require.NoError(t, err)
	require.Equal(t, model.RoleCitizen, user.Role)
	require.NotEqual(t, input.Password, user.Password)

	// Duplicate registration conflicts.
	_, err = svc.SignUp(ctx, input)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	token, err := svc.SignIn(ctx, model.SignInInput{
		Email:    input.Email,
		Password: input.Password,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, err := svc.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), userID)
	require.Equal(t, string(model.RoleCitizen), role)
}

func TestSignInWrongPassword(t *testing.T) {
	store := newMemStore()
	svc := newAuthService(store)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, model.SignUpInput{
		Username: "citizen1",
		Email:    "citizen@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, model.SignInInput{
		Email:    "citizen@example.com",
		Password: "WrongPass1!",
	})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestParseTokenCarriesRole(t *testing.T) {
	svc := newAuthService(newMemStore())

	token, err := svc.GenerateJWTToken("some-user-id", string(model.RoleAdmin))
	require.NoError(t, err)

	userID, role, err := svc.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "some-user-id", userID)
	require.Equal(t, string(model.RoleAdmin), role)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(newMemStore())

	_, _, err := svc.ParseToken("not-a-token")
	require.Error(t, err)
}
