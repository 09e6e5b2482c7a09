package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/managethefans/portal-api/internal/model"
)

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, admin_id, client_id, scheduled_at, duration_minutes,
			location, details, amount_cents, photo_url, status,
			notification_method, notification_sent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		apt.ID,
		apt.AdminID,
		apt.ClientID,
		apt.ScheduledAt,
		apt.DurationMinutes,
		apt.Location,
		apt.Details,
		apt.AmountCents,
		apt.PhotoURL,
		apt.Status,
		apt.NotificationMethod,
		apt.NotificationSent,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT id, admin_id, client_id, scheduled_at, duration_minutes,
			   location, details, amount_cents, photo_url, status,
			   notification_method, notification_sent, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `
		SELECT id, admin_id, client_id, scheduled_at, duration_minutes,
			   location, details, amount_cents, photo_url, status,
			   notification_method, notification_sent, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if filters.AdminID != uuid.Nil {
		query += fmt.Sprintf(" AND admin_id = $%d", argCount)
		args = append(args, filters.AdminID)
		argCount++
	}

	if filters.ClientID != uuid.Nil {
		query += fmt.Sprintf(" AND client_id = $%d", argCount)
		args = append(args, filters.ClientID)
		argCount++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	if !filters.StartDate.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, filters.StartDate)
		argCount++
	}

	if !filters.EndDate.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at <= $%d", argCount)
		args = append(args, filters.EndDate)
		argCount++
	}

	query += " ORDER BY scheduled_at ASC"

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus is the transition arbiter: the WHERE clause re-checks the
// current status so a concurrent transition loses cleanly at the database.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, from []model.AppointmentStatus, cancelReason *string) (int64, error) {
	fromStates := make([]string, len(from))
	for i, s := range from {
		fromStates[i] = string(s)
	}

	query := `
		UPDATE appointments
		SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = $3
		WHERE id = $4 AND status = ANY($5)
	`
	result, err := r.db.ExecContext(ctx, query, to, cancelReason, time.Now(), id, pq.Array(fromStates))
	if err != nil {
		return 0, fmt.Errorf("failed to update appointment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *appointmentRepository) SetNotificationSent(ctx context.Context, id uuid.UUID, sent bool) error {
	query := `
		UPDATE appointments
		SET notification_sent = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, sent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set notification_sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment not found")
	}
	return nil
}

func (r *appointmentRepository) CountUpcoming(ctx context.Context, userID uuid.UUID, from time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE (admin_id = $1 OR client_id = $1)
		AND scheduled_at >= $2
		AND status IN ('pending', 'approved')
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, from); err != nil {
		return 0, fmt.Errorf("failed to count upcoming appointments: %w", err)
	}
	return count, nil
}

func (r *appointmentRepository) ListUpcoming(ctx context.Context, userID uuid.UUID, from time.Time, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT id, admin_id, client_id, scheduled_at, duration_minutes,
			   location, details, amount_cents, photo_url, status,
			   notification_method, notification_sent, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE (admin_id = $1 OR client_id = $1)
		AND scheduled_at >= $2
		AND status IN ('pending', 'approved')
		ORDER BY scheduled_at ASC
		LIMIT $3
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, userID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CountByStatus(ctx context.Context, userID uuid.UUID, status model.AppointmentStatus) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE (admin_id = $1 OR client_id = $1)
		AND status = $2
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, status); err != nil {
		return 0, fmt.Errorf("failed to count appointments by status: %w", err)
	}
	return count, nil
}
