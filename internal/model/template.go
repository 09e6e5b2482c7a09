package model

import (
	"time"

	"github.com/google/uuid"
)

// Template type constants
const (
	TemplateTypeEmail        = "email"
	TemplateTypeSMS          = "sms"
	TemplateTypeNotification = "notification"
)

// CommunicationTemplate is a parameterized text blueprint with {{placeholder}} tokens.
type CommunicationTemplate struct {
	Base
	Name    string `db:"name" json:"name"`
	Type    string `db:"type" json:"type"`
	Subject string `db:"subject" json:"subject,omitempty"`
	Content string `db:"content" json:"content"`
}

// CreateTemplateRequest represents template creation parameters
type CreateTemplateRequest struct {
	Name    string `json:"name" binding:"required"`
	Type    string `json:"type" binding:"required,oneof=email sms notification"`
	Subject string `json:"subject"`
	Content string `json:"content" binding:"required"`
}

// UpdateTemplateRequest represents template update parameters
type UpdateTemplateRequest struct {
	Name    *string `json:"name"`
	Type    *string `json:"type" binding:"omitempty,oneof=email sms notification"`
	Subject *string `json:"subject"`
	Content *string `json:"content"`
}

// SendCommunicationRequest renders a template (or raw content) to a recipient.
type SendCommunicationRequest struct {
	RecipientID uuid.UUID         `json:"recipient_id" binding:"required"`
	TemplateID  *uuid.UUID        `json:"template_id"`
	Channel     string            `json:"channel" binding:"required,notifymethod"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	Params      map[string]string `json:"params"`
}

// SentCommunication is the durable log of one outbound communication.
type SentCommunication struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	SenderID    uuid.UUID  `db:"sender_id" json:"sender_id"`
	TemplateID  *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
	Channel     string     `db:"channel" json:"channel"`
	Subject     string     `db:"subject" json:"subject,omitempty"`
	Content     string     `db:"content" json:"content"`
	Delivered   bool       `db:"delivered" json:"delivered"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
