package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/model"
)

// ErrDuplicateProviderEvent marks a replayed billing webhook delivery.
var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error)
	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, apt *model.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	// UpdateStatus performs a conditional transition: the row is updated only
	// when its current status is one of the allowed from-states. Returns the
	// number of rows changed so callers can detect a lost race.
	UpdateStatus(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, from []model.AppointmentStatus, cancelReason *string) (int64, error)
	SetNotificationSent(ctx context.Context, id uuid.UUID, sent bool) error
	CountUpcoming(ctx context.Context, userID uuid.UUID, from time.Time) (int, error)
	ListUpcoming(ctx context.Context, userID uuid.UUID, from time.Time, limit int) ([]*model.Appointment, error)
	CountByStatus(ctx context.Context, userID uuid.UUID, status model.AppointmentStatus) (int, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Update(ctx context.Context, n *model.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	FindByParticipants(ctx context.Context, adminID, clientID uuid.UUID) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]*model.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID uuid.UUID) error
	CountUnreadMessages(ctx context.Context, userID uuid.UUID) (int, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, tpl *model.CommunicationTemplate) error
	Get(ctx context.Context, id uuid.UUID) (*model.CommunicationTemplate, error)
	GetByName(ctx context.Context, name string) (*model.CommunicationTemplate, error)
	Update(ctx context.Context, tpl *model.CommunicationTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, templateType string) ([]*model.CommunicationTemplate, error)
	RecordSent(ctx context.Context, sent *model.SentCommunication) error
	ListSent(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.SentCommunication, error)
}

type BillingRepository interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	InsertProviderEvent(ctx context.Context, evt *model.ProviderEvent) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
