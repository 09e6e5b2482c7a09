package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusApproved  AppointmentStatus = "approved"
	AppointmentStatusDeclined  AppointmentStatus = "declined"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Notification method constants shared by appointments and the dispatcher.
const (
	NotifyMethodEmail = "email"
	NotifyMethodSMS   = "sms"
	NotifyMethodInApp = "in_app"
	NotifyMethodAll   = "all"
)

// Appointment links one admin and one client with a lifecycle status.
type Appointment struct {
	Base
	AdminID            uuid.UUID         `db:"admin_id" json:"admin_id"`
	ClientID           uuid.UUID         `db:"client_id" json:"client_id"`
	ScheduledAt        time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes    int               `db:"duration_minutes" json:"duration_minutes"`
	Location           string            `db:"location" json:"location"`
	Details            string            `db:"details" json:"details,omitempty"`
	AmountCents        int64             `db:"amount_cents" json:"amount_cents"`
	PhotoURL           *string           `db:"photo_url" json:"photo_url,omitempty"`
	Status             AppointmentStatus `db:"status" json:"status"`
	NotificationMethod string            `db:"notification_method" json:"notification_method"`
	NotificationSent   bool              `db:"notification_sent" json:"notification_sent"`
	CancelReason       *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// ProposeAppointmentRequest represents admin-side proposal parameters
type ProposeAppointmentRequest struct {
	ClientID           uuid.UUID `json:"client_id" binding:"required"`
	ScheduledAt        time.Time `json:"scheduled_at" binding:"required"`
	DurationMinutes    int       `json:"duration_minutes" binding:"required,min=1"`
	Location           string    `json:"location" binding:"required"`
	Details            string    `json:"details" binding:"max=2000"`
	AmountCents        int64     `json:"amount_cents" binding:"min=0"`
	PhotoURL           string    `json:"photo_url"`
	NotificationMethod string    `json:"notification_method" binding:"omitempty,notifymethod"`
}

// RespondAppointmentRequest represents the client's answer to a pending proposal
type RespondAppointmentRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=approved declined"`
}

// CancelAppointmentRequest carries the optional cancellation reason
type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ResendNotificationRequest optionally overrides the stored channel
type ResendNotificationRequest struct {
	Method string `json:"method" binding:"omitempty,notifymethod"`
}

// AppointmentFilters represents appointment list parameters
type AppointmentFilters struct {
	AdminID   uuid.UUID
	ClientID  uuid.UUID
	Status    AppointmentStatus
	StartDate time.Time
	EndDate   time.Time
}

// Terminal reports whether no further transitions are allowed from s.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusDeclined, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}
