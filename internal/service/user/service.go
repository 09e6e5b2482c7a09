package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/managethefans/portal-api/internal/email"
	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/pkg/auth"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

// Service owns account lifecycle: registration, verification, profile
// updates and the admin-side client roster.
type Service struct {
	repo     repository.UserRepository
	emailSvc email.Service
	jwtSvc   auth.JWTService
}

func NewService(repo repository.UserRepository, emailSvc email.Service, jwtSvc auth.JWTService) *Service {
	return &Service{
		repo:     repo,
		emailSvc: emailSvc,
		jwtSvc:   jwtSvc,
	}
}

// Register creates a pending client account and emails a verification token.
// The email is best effort; the account exists either way.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperrors.Conflict("an account with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Internal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	user := &model.User{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Email:           req.Email,
		Name:            req.Name,
		PasswordHash:    string(hash),
		Role:            model.UserRoleClient,
		Status:          model.UserStatusPending,
		NotifyByDefault: model.NotifyMethodEmail,
	}
	if req.Phone != "" {
		user.Phone = &req.Phone
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}

	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to generate verification token")
		return user, nil
	}
	if err := s.emailSvc.SendVerification(ctx, user.Email, token); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to send verification email")
	}

	return user, nil
}

// Verify validates a verification token, marks the account verified and
// sends the welcome email. Verifying an already-verified account is a no-op.
func (s *Service) Verify(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	user, err := s.get(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status == model.UserStatusVerified {
		return user, nil
	}
	if user.Status == model.UserStatusInactive {
		return nil, apperrors.Forbidden("account is deactivated")
	}

	now := time.Now()
	user.Status = model.UserStatusVerified
	user.VerifiedAt = &now
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.emailSvc.SendWelcome(ctx, user.Email, user.Name); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to send welcome email")
	}
	return user, nil
}

// Get returns a single user. Admins can read anyone; clients only themselves.
func (s *Service) Get(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) (*model.User, error) {
	if caller.Role != model.UserRoleAdmin && caller.UserID != id {
		return nil, apperrors.Forbidden("cannot read another user's profile")
	}
	return s.get(ctx, id)
}

// Update applies a partial profile update. Status changes are admin-only.
func (s *Service) Update(ctx context.Context, caller *model.TokenClaims, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	if caller.Role != model.UserRoleAdmin && caller.UserID != id {
		return nil, apperrors.Forbidden("cannot update another user's profile")
	}
	if req.Status != nil && caller.Role != model.UserRoleAdmin {
		return nil, apperrors.Forbidden("only admins can change account status")
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Bio != nil {
		user.Bio = req.Bio
	}
	if req.AvatarURL != nil {
		user.AvatarURL = req.AvatarURL
	}
	if req.Timezone != nil {
		user.Timezone = *req.Timezone
	}
	if req.Status != nil {
		user.Status = *req.Status
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// CompleteOnboarding flags the caller's own account as onboarded.
func (s *Service) CompleteOnboarding(ctx context.Context, caller *model.TokenClaims) (*model.User, error) {
	user, err := s.get(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if user.Onboarded {
		return user, nil
	}

	user.Onboarded = true
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// SetDefaultNotificationMethod updates the caller's preferred channel.
func (s *Service) SetDefaultNotificationMethod(ctx context.Context, caller *model.TokenClaims, method string) (*model.User, error) {
	switch method {
	case model.NotifyMethodEmail, model.NotifyMethodSMS, model.NotifyMethodInApp, model.NotifyMethodAll:
	default:
		return nil, apperrors.BadRequest("unknown notification method", nil)
	}

	user, err := s.get(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	user.NotifyByDefault = method
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// List returns the user roster. Admin-only.
func (s *Service) List(ctx context.Context, caller *model.TokenClaims, filters *model.UserFilters) ([]*model.User, error) {
	if caller.Role != model.UserRoleAdmin {
		return nil, apperrors.Forbidden("only admins can list users")
	}
	users, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return users, nil
}

// Deactivate marks an account inactive. Admin-only; admins cannot
// deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) error {
	if caller.Role != model.UserRoleAdmin {
		return apperrors.Forbidden("only admins can deactivate accounts")
	}
	if caller.UserID == id {
		return apperrors.BadRequest("cannot deactivate your own account", nil)
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	user.Status = model.UserStatusInactive
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}
