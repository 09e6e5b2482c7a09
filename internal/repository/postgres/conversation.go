package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/model"
)

const conversationColumns = `
	id, admin_id, client_id, last_message, last_sender_id, last_message_at,
	created_at, updated_at, deleted_at
`

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	query := `
		INSERT INTO conversations (id, admin_id, client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		conv.ID,
		conv.AdminID,
		conv.ClientID,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND deleted_at IS NULL`

	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, query, id)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, adminID, clientID uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE admin_id = $1 AND client_id = $2 AND deleted_at IS NULL
	`
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, query, adminID, clientID)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (admin_id = $1 OR client_id = $1) AND deleted_at IS NULL
		ORDER BY last_message_at DESC NULLS LAST
	`
	var conversations []*model.Conversation
	err := r.db.SelectContext(ctx, &conversations, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// AppendMessage inserts the message and refreshes the conversation's
// last-message projection in one transaction.
func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO messages (id, conversation_id, sender_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insertQuery,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.Read,
		msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	projectionQuery := `
		UPDATE conversations
		SET last_message = $1, last_sender_id = $2, last_message_at = $3, updated_at = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, projectionQuery,
		msg.Content,
		msg.SenderID,
		msg.CreatedAt,
		msg.ConversationID,
	); err != nil {
		return fmt.Errorf("failed to update conversation projection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

func (r *conversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]*model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, read, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	var messages []*model.Message
	err := r.db.SelectContext(ctx, &messages, query, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *conversationRepository) MarkMessagesRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	query := `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND sender_id != $2 AND read = FALSE
	`
	_, err := r.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (r *conversationRepository) CountUnreadMessages(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.admin_id = $1 OR c.client_id = $1)
		AND m.sender_id != $1
		AND m.read = FALSE
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
