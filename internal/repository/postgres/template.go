package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/model"
)

func (r *templateRepository) Create(ctx context.Context, tpl *model.CommunicationTemplate) error {
	query := `
		INSERT INTO communication_templates (id, name, type, subject, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		tpl.ID,
		tpl.Name,
		tpl.Type,
		tpl.Subject,
		tpl.Content,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (*model.CommunicationTemplate, error) {
	query := `
		SELECT id, name, type, subject, content, created_at, updated_at, deleted_at
		FROM communication_templates
		WHERE id = $1 AND deleted_at IS NULL
	`
	var tpl model.CommunicationTemplate
	err := r.db.GetContext(ctx, &tpl, query, id)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tpl, nil
}

func (r *templateRepository) GetByName(ctx context.Context, name string) (*model.CommunicationTemplate, error) {
	query := `
		SELECT id, name, type, subject, content, created_at, updated_at, deleted_at
		FROM communication_templates
		WHERE name = $1 AND deleted_at IS NULL
	`
	var tpl model.CommunicationTemplate
	err := r.db.GetContext(ctx, &tpl, query, name)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return &tpl, nil
}

func (r *templateRepository) Update(ctx context.Context, tpl *model.CommunicationTemplate) error {
	query := `
		UPDATE communication_templates
		SET name = $1, type = $2, subject = $3, content = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL
	`
	tpl.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		tpl.Name,
		tpl.Type,
		tpl.Subject,
		tpl.Content,
		tpl.UpdatedAt,
		tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE communication_templates
		SET deleted_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *templateRepository) List(ctx context.Context, templateType string) ([]*model.CommunicationTemplate, error) {
	query := `
		SELECT id, name, type, subject, content, created_at, updated_at, deleted_at
		FROM communication_templates
		WHERE deleted_at IS NULL
	`
	args := []interface{}{}

	if templateType != "" {
		query += ` AND type = $1`
		args = append(args, templateType)
	}

	query += ` ORDER BY name ASC`

	var templates []*model.CommunicationTemplate
	err := r.db.SelectContext(ctx, &templates, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) RecordSent(ctx context.Context, sent *model.SentCommunication) error {
	query := `
		INSERT INTO sent_communications (
			id, recipient_id, sender_id, template_id, channel, subject,
			content, delivered, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		sent.ID,
		sent.RecipientID,
		sent.SenderID,
		sent.TemplateID,
		sent.Channel,
		sent.Subject,
		sent.Content,
		sent.Delivered,
		sent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sent communication: %w", err)
	}
	return nil
}

func (r *templateRepository) ListSent(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.SentCommunication, error) {
	query := `
		SELECT id, recipient_id, sender_id, template_id, channel, subject,
			   content, delivered, created_at
		FROM sent_communications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var sent []*model.SentCommunication
	err := r.db.SelectContext(ctx, &sent, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent communications: %w", err)
	}
	return sent, nil
}
