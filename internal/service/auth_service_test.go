package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/university-records-api/internal/middleware"
	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/internal/service"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type mockAuthUserReader struct {
	users map[string]*models.User
}

func (m *mockAuthUserReader) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*service.AuthService, config.JWTConfig) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &mockAuthUserReader{users: map[string]*models.User{
		"dana@uni.test": {
			ID:           "stu-1",
			Email:        "dana@uni.test",
			PasswordHash: string(hash),
			FullName:     "Dana Alvarez",
			Role:         models.RoleStudent,
			Active:       true,
		},
		"ghost@uni.test": {
			ID:           "stu-2",
			Email:        "ghost@uni.test",
			PasswordHash: string(hash),
			Role:         models.RoleStudent,
			Active:       false,
		},
	}}
	cfg := config.JWTConfig{Secret: "test-secret", Issuer: "records-test", AccessExpiry: time.Minute}
	return service.NewAuthService(users, cfg, nil, zap.NewNop()), cfg
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	svc, cfg := newAuthFixture(t)

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@uni.test",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), result.ExpiresIn)
	assert.Equal(t, "stu-1", result.User.ID)
	assert.Equal(t, models.RoleStudent, result.User.Role)

	// The request middleware must accept what Login issued.
	claims, err := middleware.NewTokenValidator(cfg).Validate(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "Dana Alvarez", claims.FullName)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@uni.test",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@uni.test",
		Password: "correct horse",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	// Same message as a wrong password, no account enumeration.
	assert.Equal(t, "invalid email or password", appErr.Message)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@uni.test",
		Password: "correct horse",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
