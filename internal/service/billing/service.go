package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/setupintent"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

// ErrDuplicateEvent signals a replayed webhook delivery that was already applied.
var ErrDuplicateEvent = errors.New("duplicate billing event")

// Service owns the Stripe integration: customer provisioning, payment-method
// setup and the webhook-driven subscription projection. Webhook signature
// verification is the only authentication on that path.
type Service struct {
	repo      repository.BillingRepository
	userRepo  repository.UserRepository
	outbox    repository.OutboxRepository
	cfg       config.StripeConfig
	tolerance time.Duration
}

func NewService(repo repository.BillingRepository, userRepo repository.UserRepository, outbox repository.OutboxRepository, cfg config.StripeConfig) *Service {
	tolSeconds := cfg.WebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	stripe.Key = cfg.SecretKey
	return &Service{
		repo:      repo,
		userRepo:  userRepo,
		outbox:    outbox,
		cfg:       cfg,
		tolerance: time.Duration(tolSeconds) * time.Second,
	}
}

// CreateSetupIntent provisions the Stripe customer if needed and returns the
// client secret for the hosted payment element.
func (s *Service) CreateSetupIntent(ctx context.Context, caller *model.TokenClaims) (*model.SetupIntentResponse, error) {
	if s.cfg.SecretKey == "" {
		return nil, apperrors.BadRequest("billing is not configured", nil)
	}

	user, err := s.userRepo.Get(ctx, caller.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	intent, err := setupintent.New(&stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		PaymentMethodTypes: []*string{
			stripe.String("card"),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("stripe setup intent create failed")
		return nil, apperrors.Internal(err)
	}

	return &model.SetupIntentResponse{
		ClientSecret: intent.ClientSecret,
		CustomerID:   customerID,
	}, nil
}

// GetSubscription returns the local subscription projection; users with no
// record get free-tier defaults rather than a 404.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Subscription{
			UserID: userID,
			Plan:   "free",
			Status: model.SubscriptionStatusNone,
		}, nil
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return sub, nil
}

// CancelSubscription cancels at the provider and applies the cancellation
// locally. The deterministic idempotency key makes retries safe.
func (s *Service) CancelSubscription(ctx context.Context, caller *model.TokenClaims, userID uuid.UUID) error {
	if caller.Role != model.UserRoleAdmin && caller.UserID != userID {
		return apperrors.Forbidden("cannot cancel another user's subscription")
	}

	sub, err := s.repo.GetSubscription(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("subscription", err)
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	if sub.StripeSubscriptionID == "" {
		return apperrors.Conflict("no provider subscription on record")
	}

	idemKey := "cancel:" + userID.String() + ":" + sub.StripeSubscriptionID
	params := &stripe.SubscriptionCancelParams{}
	params.IdempotencyKey = stripe.String(idemKey)

	if _, err := stripesubscription.Cancel(sub.StripeSubscriptionID, params); err != nil {
		log.Error().Err(err).
			Str("stripe_subscription_id", sub.StripeSubscriptionID).
			Msg("stripe subscription cancel failed")
		return apperrors.Internal(err)
	}

	now := time.Now()
	payload, _ := json.Marshal(map[string]string{
		"user_id":                userID.String(),
		"stripe_subscription_id": sub.StripeSubscriptionID,
		"canceled_at":            now.UTC().Format(time.RFC3339),
	})
	if err := s.repo.InsertProviderEvent(ctx, &model.ProviderEvent{
		Provider:        "internal",
		ProviderEventID: idemKey,
		EventType:       "subscription.cancel",
		Payload:         payload,
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateProviderEvent) {
			return nil
		}
		return apperrors.Internal(err)
	}

	sub.Status = model.SubscriptionStatusCanceled
	sub.UpdatedAt = now
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return apperrors.Internal(err)
	}

	s.emitSubscriptionChanged(ctx, sub)
	return nil
}

// HandleWebhook verifies the signature, records the event for idempotency
// and applies the subscription change. Replayed deliveries return
// ErrDuplicateEvent and must be acknowledged with 200.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if s.cfg.WebhookSecret == "" {
		return apperrors.BadRequest("stripe webhook not configured", nil)
	}

	evt, err := webhook.ConstructEventWithTolerance(payload, sigHeader, s.cfg.WebhookSecret, s.tolerance)
	if err != nil {
		return apperrors.Unauthorized(err)
	}

	evtType := string(evt.Type)
	log.Info().
		Str("provider", "stripe").
		Str("provider_event_id", evt.ID).
		Str("event_type", evtType).
		Msg("billing provider event received")

	if err := s.repo.InsertProviderEvent(ctx, &model.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         payload,
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateProviderEvent) {
			log.Info().
				Str("provider_event_id", evt.ID).
				Msg("billing provider event duplicate ignored")
			return ErrDuplicateEvent
		}
		return apperrors.Internal(err)
	}

	switch evtType {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscriptionEvent(ctx, evt.Data.Raw, false)
	case "customer.subscription.deleted":
		return s.applySubscriptionEvent(ctx, evt.Data.Raw, true)
	default:
		// unhandled event types are recorded and acknowledged
		return nil
	}
}

func (s *Service) applySubscriptionEvent(ctx context.Context, raw json.RawMessage, deleted bool) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(raw, &stripeSub); err != nil {
		return apperrors.BadRequest("invalid subscription payload", err)
	}

	userIDRaw := stripeSub.Metadata["user_id"]
	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		log.Warn().Str("user_id", userIDRaw).Msg("stripe subscription missing user_id metadata")
		return nil
	}

	customerID := ""
	if stripeSub.Customer != nil {
		customerID = stripeSub.Customer.ID
	}

	sub, err := s.repo.GetSubscription(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		sub = &model.Subscription{
			ID:        uuid.New(),
			UserID:    userID,
			CreatedAt: time.Now(),
		}
	} else if err != nil {
		return apperrors.Internal(err)
	}

	sub.StripeCustomerID = customerID
	sub.StripeSubscriptionID = stripeSub.ID
	sub.Plan = stripeSub.Metadata["plan"]
	sub.UpdatedAt = time.Now()

	switch {
	case deleted:
		sub.Status = model.SubscriptionStatusCanceled
	case stripeSub.Status == stripe.SubscriptionStatusActive || stripeSub.Status == stripe.SubscriptionStatusTrialing:
		sub.Status = model.SubscriptionStatusActive
	case stripeSub.Status == stripe.SubscriptionStatusPastDue:
		sub.Status = model.SubscriptionStatusPastDue
	default:
		sub.Status = model.SubscriptionStatusNone
	}

	if stripeSub.CurrentPeriodEnd > 0 {
		end := time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &end
	}

	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return apperrors.Internal(err)
	}

	s.emitSubscriptionChanged(ctx, sub)
	return nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomer != nil && *user.StripeCustomer != "" {
		return *user.StripeCustomer, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
		Metadata: map[string]string{
			"user_id": user.ID.String(),
		},
	}
	c, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := s.userRepo.SetStripeCustomer(ctx, user.ID, c.ID); err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *Service) emitSubscriptionChanged(ctx context.Context, sub *model.Subscription) {
	payload, err := json.Marshal(sub)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal subscription event")
		return
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventSubscriptionChanged,
		Payload:   payload,
	}); err != nil {
		log.Error().Err(err).Msg("failed to write subscription outbox event")
	}
}
