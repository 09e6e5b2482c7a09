package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a durable grouping of messages between two participants.
type Conversation struct {
	Base
	AdminID       uuid.UUID  `db:"admin_id" json:"admin_id"`
	ClientID      uuid.UUID  `db:"client_id" json:"client_id"`
	LastMessage   *string    `db:"last_message" json:"last_message,omitempty"`
	LastSenderID  *uuid.UUID `db:"last_sender_id" json:"last_sender_id,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}

// Message belongs to one conversation and one sender; messages are append-only.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	Read           bool      `db:"read" json:"read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SendMessageRequest represents message send parameters
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// StartConversationRequest opens (or returns) the conversation with a counterparty.
type StartConversationRequest struct {
	ParticipantID uuid.UUID `json:"participant_id" binding:"required"`
}

// MessageEvent is the payload published on a conversation's live feed.
type MessageEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is a party to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.AdminID == userID || c.ClientID == userID
}
