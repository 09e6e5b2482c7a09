package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subscription status constants mirror the provider's lifecycle.
const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
)

// Subscription is the local projection of a client's provider subscription.
type Subscription struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	UserID                 uuid.UUID `db:"user_id" json:"user_id"`
	StripeCustomerID       string    `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID   string    `db:"stripe_subscription_id" json:"-"`
	Plan                   string    `db:"plan" json:"plan"`
	Status                 string    `db:"status" json:"status"`
	CurrentPeriodEnd       *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderEvent records a billing-provider webhook delivery for idempotency.
type ProviderEvent struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Provider        string          `db:"provider" json:"provider"`
	ProviderEventID string          `db:"provider_event_id" json:"provider_event_id"`
	EventType       string          `db:"event_type" json:"event_type"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// SetupIntentRequest starts a hosted payment-method onboarding flow.
type SetupIntentRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// SetupIntentResponse carries the client secret for the hosted payment element.
type SetupIntentResponse struct {
	ClientSecret string `json:"client_secret"`
	CustomerID   string `json:"customer_id"`
}
