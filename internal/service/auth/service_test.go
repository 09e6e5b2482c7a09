package auth

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/pkg/auth"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _ *model.UserFilters) ([]*model.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) SetStripeCustomer(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func newJWT(t *testing.T) auth.JWTService {
	t.Helper()
	return auth.NewJWTService(auth.Config{
		Secret:             "test-secret",
		RefreshSecret:      "test-refresh-secret",
		ExpiryHours:        1,
		RefreshExpiryHours: 24,
	})
}

func verifiedUser(t *testing.T, password string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        "client@agency.test",
		Name:         "Creator Client",
		PasswordHash: string(hash),
		Role:         model.UserRoleClient,
		Status:       model.UserStatusVerified,
	}
}

func TestLogin(t *testing.T) {
	user := verifiedUser(t, "correct horse")
	repo := newFakeUserRepo(user)
	svc := NewService(repo, newJWT(t))

	pair, loggedIn, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.EqualValues(t, 3600, pair.ExpiresIn)
	assert.NotNil(t, loggedIn.LastLoginAt)
}

func TestLoginWrongPassword(t *testing.T) {
	user := verifiedUser(t, "correct horse")
	svc := NewService(newFakeUserRepo(user), newJWT(t))

	_, _, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    user.Email,
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc := NewService(newFakeUserRepo(), newJWT(t))

	_, _, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "nobody@agency.test",
		Password: "anything",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestLoginInactiveAccount(t *testing.T) {
	user := verifiedUser(t, "correct horse")
	user.Status = model.UserStatusInactive
	svc := NewService(newFakeUserRepo(user), newJWT(t))

	_, _, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestRefresh(t *testing.T) {
	user := verifiedUser(t, "correct horse")
	repo := newFakeUserRepo(user)
	svc := NewService(repo, newJWT(t))

	pair, _, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// an access token is not a refresh token
	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestRefreshDeactivatedAccount(t *testing.T) {
	user := verifiedUser(t, "correct horse")
	repo := newFakeUserRepo(user)
	svc := NewService(repo, newJWT(t))

	pair, _, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)

	user.Status = model.UserStatusInactive

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}
