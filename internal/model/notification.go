package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusPartial  NotificationStatus = "partial"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

// Notification type tags correlate a notification with the event that produced it.
const (
	NotificationTypeAppointment   = "appointment"
	NotificationTypeMessage       = "message"
	NotificationTypeBilling       = "billing"
	NotificationTypeCommunication = "communication"
	NotificationTypeSystem        = "system"
)

// Notification is a recorded message delivered to one recipient.
type Notification struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	UserID      uuid.UUID          `db:"user_id" json:"user_id"`
	Type        string             `db:"type" json:"type"`
	Channel     string             `db:"channel" json:"channel"`
	Title       string             `db:"title" json:"title"`
	Content     string             `db:"content" json:"content"`
	Link        *string            `db:"link" json:"link,omitempty"`
	Read        bool               `db:"read" json:"read"`
	Status      NotificationStatus `db:"status" json:"status"`
	RetryCount  int                `db:"retry_count" json:"retry_count"`
	LastError   string             `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *time.Time         `db:"next_retry_at" json:"next_retry_at,omitempty"`
	SentAt      *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// NotificationEvent is the payload published on the in-app feed.
type NotificationEvent struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Link           *string   `json:"link,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChannelResult reports the outcome of a single channel attempt during dispatch.
type ChannelResult struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// DispatchResult aggregates per-channel outcomes of one dispatch call.
type DispatchResult struct {
	NotificationID uuid.UUID       `json:"notification_id"`
	Results        []ChannelResult `json:"results"`
}

// Delivered reports whether at least one channel succeeded.
func (r DispatchResult) Delivered() bool {
	for _, res := range r.Results {
		if res.Sent {
			return true
		}
	}
	return false
}

// Failed reports whether at least one channel failed.
func (r DispatchResult) Failed() bool {
	for _, res := range r.Results {
		if !res.Sent {
			return true
		}
	}
	return false
}
