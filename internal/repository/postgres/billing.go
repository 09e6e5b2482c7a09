package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
)

func (r *billingRepository) GetSubscription(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	query := `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id,
			   plan, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`
	var sub model.Subscription
	err := r.db.GetContext(ctx, &sub, query, userID)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (r *billingRepository) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, stripe_customer_id, stripe_subscription_id,
			plan, status, current_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.Plan,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// InsertProviderEvent fails with ErrDuplicateProviderEvent on replayed
// webhook deliveries; the unique index on (provider, provider_event_id)
// is the idempotency guard.
func (r *billingRepository) InsertProviderEvent(ctx context.Context, evt *model.ProviderEvent) error {
	query := `
		INSERT INTO billing_provider_events (id, provider, provider_event_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	evt.ID = uuid.New()
	evt.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		evt.ID,
		evt.Provider,
		evt.ProviderEventID,
		evt.EventType,
		evt.Payload,
		evt.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return repository.ErrDuplicateProviderEvent
		}
		return fmt.Errorf("failed to insert provider event: %w", err)
	}
	return nil
}
