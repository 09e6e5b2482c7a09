package readmodel

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

const (
	cacheTTL        = 30 * time.Second
	cleanupInterval = 5 * time.Minute
	upcomingLimit   = 5
)

// Dashboard is the denormalized per-user summary the portal home screen
// renders from.
type Dashboard struct {
	UnreadNotifications int                  `json:"unread_notifications"`
	UnreadMessages      int                  `json:"unread_messages"`
	UpcomingCount       int                  `json:"upcoming_count"`
	PendingProposals    int                  `json:"pending_proposals"`
	Upcoming            []*model.Appointment `json:"upcoming"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// Service assembles the dashboard from the notification, conversation and
// appointment stores, with a short-TTL cache in front. Staleness up to the
// TTL is acceptable for a summary view.
type Service struct {
	notifRepo repository.NotificationRepository
	convRepo  repository.ConversationRepository
	aptRepo   repository.AppointmentRepository
	cache     *gocache.Cache
}

func NewService(notifRepo repository.NotificationRepository, convRepo repository.ConversationRepository, aptRepo repository.AppointmentRepository) *Service {
	return &Service{
		notifRepo: notifRepo,
		convRepo:  convRepo,
		aptRepo:   aptRepo,
		cache:     gocache.New(cacheTTL, cleanupInterval),
	}
}

// GetDashboard returns the caller's summary, served from cache when fresh.
func (s *Service) GetDashboard(ctx context.Context, caller *model.TokenClaims) (*Dashboard, error) {
	key := caller.UserID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Dashboard), nil
	}

	now := time.Now()
	dash := &Dashboard{GeneratedAt: now}

	unreadNotifs, err := s.notifRepo.CountUnread(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	dash.UnreadNotifications = unreadNotifs

	unreadMsgs, err := s.convRepo.CountUnreadMessages(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	dash.UnreadMessages = unreadMsgs

	upcomingCount, err := s.aptRepo.CountUpcoming(ctx, caller.UserID, now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	dash.UpcomingCount = upcomingCount

	pending, err := s.aptRepo.CountByStatus(ctx, caller.UserID, model.AppointmentStatusPending)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	dash.PendingProposals = pending

	upcoming, err := s.aptRepo.ListUpcoming(ctx, caller.UserID, now, upcomingLimit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	dash.Upcoming = upcoming

	s.cache.Set(key, dash, gocache.DefaultExpiration)
	return dash, nil
}

// Invalidate drops the cached summary for a user, forcing the next read to
// rebuild. Called after writes that change dashboard counts.
func (s *Service) Invalidate(userID string) {
	s.cache.Delete(userID)
	log.Debug().Str("user_id", userID).Msg("dashboard cache invalidated")
}
