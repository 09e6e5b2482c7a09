package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/email"
	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/internal/sms"
	"github.com/managethefans/portal-api/pkg/messaging"
	"github.com/managethefans/portal-api/pkg/metrics"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second
)

// Service records notifications and delivers them through the requested
// channels. Channel "all" fans out independently; a failed channel never
// rolls back a delivered one.
type Service interface {
	Dispatch(ctx context.Context, n *model.Notification, recipient *model.User) (*model.DispatchResult, error)
	Retry(ctx context.Context, n *model.Notification, recipient *model.User) (*model.DispatchResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo     repository.NotificationRepository
	emailSvc email.Service
	smsSvc   sms.Sender
	broker   messaging.Broker
	metrics  *metrics.Metrics
}

func NewService(repo repository.NotificationRepository, emailSvc email.Service, smsSvc sms.Sender, broker messaging.Broker, m *metrics.Metrics) Service {
	return &service{
		repo:     repo,
		emailSvc: emailSvc,
		smsSvc:   smsSvc,
		broker:   broker,
		metrics:  m,
	}
}

func (s *service) Dispatch(ctx context.Context, n *model.Notification, recipient *model.User) (*model.DispatchResult, error) {
	if err := s.validate(n); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	n.ID = uuid.New()
	n.Status = model.NotificationStatusPending
	n.CreatedAt = time.Now()
	n.UpdatedAt = time.Now()

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return s.deliver(ctx, n, recipient)
}

// Retry re-attempts delivery of an existing notification. A resend is a
// brand-new attempt with no deduplication against prior sends.
func (s *service) Retry(ctx context.Context, n *model.Notification, recipient *model.User) (*model.DispatchResult, error) {
	return s.deliver(ctx, n, recipient)
}

func (s *service) deliver(ctx context.Context, n *model.Notification, recipient *model.User) (*model.DispatchResult, error) {
	channels := s.expandChannels(n.Channel)

	result := &model.DispatchResult{NotificationID: n.ID}
	for _, ch := range channels {
		start := time.Now()
		err := s.sendOn(ctx, ch, n, recipient)
		if s.metrics != nil {
			s.metrics.DispatchLatency.WithLabelValues(ch).Observe(time.Since(start).Seconds())
		}

		res := model.ChannelResult{Channel: ch, Sent: err == nil}
		if err != nil {
			res.Error = err.Error()
			if s.metrics != nil {
				s.metrics.NotificationsFailed.WithLabelValues(ch).Inc()
			}
			log.Warn().Err(err).
				Str("notification_id", n.ID.String()).
				Str("channel", ch).
				Msg("notification channel delivery failed")
		} else if s.metrics != nil {
			s.metrics.NotificationsDispatched.WithLabelValues(ch).Inc()
		}
		result.Results = append(result.Results, res)
	}

	s.recordOutcome(ctx, n, result)
	return result, nil
}

func (s *service) expandChannels(channel string) []string {
	if channel == model.NotifyMethodAll {
		return []string{model.NotifyMethodEmail, model.NotifyMethodSMS, model.NotifyMethodInApp}
	}
	return []string{channel}
}

func (s *service) sendOn(ctx context.Context, channel string, n *model.Notification, recipient *model.User) error {
	switch channel {
	case model.NotifyMethodEmail:
		if recipient.Email == "" {
			return fmt.Errorf("recipient has no email address")
		}
		return s.emailSvc.SendCustom(ctx, recipient.Email, n.Title, n.Content)
	case model.NotifyMethodSMS:
		if recipient.Phone == nil || *recipient.Phone == "" {
			return fmt.Errorf("recipient has no phone number")
		}
		return s.smsSvc.Send(ctx, *recipient.Phone, n.Content)
	case model.NotifyMethodInApp:
		event := &model.NotificationEvent{
			ID:             uuid.New(),
			NotificationID: n.ID,
			UserID:         n.UserID,
			Type:           n.Type,
			Title:          n.Title,
			Content:        n.Content,
			Link:           n.Link,
			CreatedAt:      time.Now(),
		}
		return s.broker.Publish(ctx, messaging.UserChannel(n.UserID.String()), event)
	default:
		return fmt.Errorf("unsupported channel: %s", channel)
	}
}

func (s *service) recordOutcome(ctx context.Context, n *model.Notification, result *model.DispatchResult) {
	now := time.Now()
	n.UpdatedAt = now

	switch {
	case result.Delivered() && !result.Failed():
		n.Status = model.NotificationStatusSent
		n.SentAt = &now
		n.LastError = ""
		n.NextRetryAt = nil
	case result.Delivered():
		n.Status = model.NotificationStatusPartial
		n.SentAt = &now
		n.LastError = firstError(result)
		n.NextRetryAt = nil
	default:
		n.RetryCount++
		n.LastError = firstError(result)
		if n.RetryCount >= maxRetries {
			n.Status = model.NotificationStatusFailed
			n.NextRetryAt = nil
		} else {
			n.Status = model.NotificationStatusRetrying
			next := now.Add(retryDelay * time.Duration(n.RetryCount))
			n.NextRetryAt = &next
		}
	}

	if err := s.repo.Update(ctx, n); err != nil {
		log.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("failed to record notification outcome")
	}
}

func firstError(result *model.DispatchResult) string {
	for _, res := range result.Results {
		if !res.Sent {
			return res.Error
		}
	}
	return ""
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) validate(n *model.Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if n.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if n.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}
