package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/pkg/auth"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

var errInvalidCredentials = errors.New("invalid email or password")

// Service issues and refreshes token pairs against stored credentials.
type Service struct {
	repo   repository.UserRepository
	jwtSvc auth.JWTService
}

func NewService(repo repository.UserRepository, jwtSvc auth.JWTService) *Service {
	return &Service{repo: repo, jwtSvc: jwtSvc}
}

// Login verifies the password and issues a token pair. Inactive accounts
// cannot log in; pending accounts can, so clients can finish onboarding.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenPair, *model.User, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.Unauthorized(errInvalidCredentials)
	}
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized(errInvalidCredentials)
	}
	if user.Status == model.UserStatusInactive {
		return nil, nil, apperrors.Forbidden("account is deactivated")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.repo.Update(ctx, user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	}

	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The user is
// re-read so revoked or deactivated accounts lose access at refresh time.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	user, err := s.repo.Get(ctx, claims.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unauthorized(errors.New("account no longer exists"))
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if user.Status == model.UserStatusInactive {
		return nil, apperrors.Forbidden("account is deactivated")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return pair, nil
}

func (s *Service) issuePair(user *model.User) (*model.TokenPair, error) {
	access, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtSvc.AccessTokenTTL().Seconds()),
	}, nil
}
