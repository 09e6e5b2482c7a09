package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/internal/service/notification"
	"github.com/managethefans/portal-api/pkg/logger"
)

type NotificationRetrierConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// NotificationRetrier re-attempts notifications the dispatcher parked in the
// retrying state. The dispatcher owns the retry budget; this worker only
// feeds due notifications back to it.
type NotificationRetrier struct {
	notifRepo repository.NotificationRepository
	userRepo  repository.UserRepository
	notifSvc  notification.Service
	config    NotificationRetrierConfig
	logger    *logger.Logger
}

func NewNotificationRetrier(
	notifRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	notifSvc notification.Service,
	config NotificationRetrierConfig,
	logger *logger.Logger,
) *NotificationRetrier {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &NotificationRetrier{
		notifRepo: notifRepo,
		userRepo:  userRepo,
		notifSvc:  notifSvc,
		config:    config,
		logger:    logger,
	}
}

func (r *NotificationRetrier) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("starting notification retrier")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down notification retrier")
			return
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.logger.Error(err, "notification retry sweep failed")
			}
		}
	}
}

func (r *NotificationRetrier) sweep(ctx context.Context) error {
	due, err := r.notifRepo.ListRetryable(ctx, time.Now(), r.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list retryable notifications: %w", err)
	}

	for _, n := range due {
		recipient, err := r.userRepo.Get(ctx, n.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("retryable notification has no recipient", "notification_id", n.ID.String())
			continue
		}
		if err != nil {
			r.logger.Error(err, "failed to load recipient", "notification_id", n.ID.String())
			continue
		}

		if _, err := r.notifSvc.Retry(ctx, n, recipient); err != nil {
			r.logger.Error(err, "notification retry failed", "notification_id", n.ID.String())
		}
	}
	return nil
}
