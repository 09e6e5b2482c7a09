package appointment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/internal/service/notification"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

// transitions is the lifecycle table. Declined, completed and cancelled are
// terminal unless the reopen policy is enabled.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:  {model.AppointmentStatusApproved, model.AppointmentStatusDeclined, model.AppointmentStatusCancelled},
	model.AppointmentStatusApproved: {model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
}

type Service struct {
	repo     repository.AppointmentRepository
	userRepo repository.UserRepository
	outbox   repository.OutboxRepository
	notifSvc notification.Service
	cfg      config.AppointmentsConfig
}

func NewService(repo repository.AppointmentRepository, userRepo repository.UserRepository, outbox repository.OutboxRepository, notifSvc notification.Service, cfg config.AppointmentsConfig) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		outbox:   outbox,
		notifSvc: notifSvc,
		cfg:      cfg,
	}
}

// CanTransition reports whether from -> to is allowed under the configured policy.
func (s *Service) CanTransition(from, to model.AppointmentStatus) bool {
	if s.cfg.AllowReopen && from.Terminal() && to == model.AppointmentStatusPending {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Propose creates a pending appointment and dispatches the initial
// notification on the requested channel. Admin-only.
func (s *Service) Propose(ctx context.Context, admin *model.TokenClaims, req *model.ProposeAppointmentRequest) (*model.Appointment, error) {
	if admin.Role != model.UserRoleAdmin {
		return nil, apperrors.Forbidden("only admins can propose appointments")
	}

	client, err := s.userRepo.Get(ctx, req.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("client", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if client.Role != model.UserRoleClient {
		return nil, apperrors.BadRequest("recipient is not a client", nil)
	}

	if err := s.validateProposal(req); err != nil {
		return nil, err
	}

	method := req.NotificationMethod
	if method == "" {
		method = client.NotifyByDefault
	}
	if method == "" {
		method = s.cfg.DefaultNotifyVia
	}

	now := time.Now()
	apt := &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		AdminID:            admin.UserID,
		ClientID:           req.ClientID,
		ScheduledAt:        req.ScheduledAt,
		DurationMinutes:    req.DurationMinutes,
		Location:           req.Location,
		Details:            req.Details,
		AmountCents:        req.AmountCents,
		Status:             model.AppointmentStatusPending,
		NotificationMethod: method,
		NotificationSent:   false,
	}
	if req.PhotoURL != "" {
		apt.PhotoURL = &req.PhotoURL
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.emitEvent(ctx, model.EventAppointmentProposed, apt)
	s.notify(ctx, apt, client, method,
		"New appointment proposal",
		fmt.Sprintf("You have a new appointment proposal for %s at %s.",
			apt.ScheduledAt.Format("Jan 2, 2006 15:04"), apt.Location))

	return apt, nil
}

// Respond is the client's answer to a pending proposal. The conditional
// status update is the race arbiter: a second responder loses at the
// database and surfaces as a conflict.
func (s *Service) Respond(ctx context.Context, caller *model.TokenClaims, id uuid.UUID, status model.AppointmentStatus) (*model.Appointment, error) {
	if status != model.AppointmentStatusApproved && status != model.AppointmentStatusDeclined {
		return nil, apperrors.BadRequest("response must be approved or declined", nil)
	}

	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if apt.ClientID != caller.UserID {
		return nil, apperrors.Forbidden("only the assigned client can respond to this proposal")
	}
	if apt.Status != model.AppointmentStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("appointment already %s", apt.Status))
	}

	return s.transition(ctx, apt, status, []model.AppointmentStatus{model.AppointmentStatusPending},
		nil, apt.AdminID, model.EventAppointmentResponded,
		"Appointment proposal "+string(status),
		fmt.Sprintf("%s your appointment proposal for %s.", responseVerb(status), apt.ScheduledAt.Format("Jan 2, 2006 15:04")))
}

// Cancel is allowed from pending or approved, by the owning admin or the
// assigned client.
func (s *Service) Cancel(ctx context.Context, caller *model.TokenClaims, id uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if apt.AdminID != caller.UserID && apt.ClientID != caller.UserID {
		return nil, apperrors.Forbidden("not a participant of this appointment")
	}
	if !s.CanTransition(apt.Status, model.AppointmentStatusCancelled) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot cancel a %s appointment", apt.Status))
	}

	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}

	counterparty := apt.ClientID
	if caller.UserID == apt.ClientID {
		counterparty = apt.AdminID
	}

	return s.transition(ctx, apt, model.AppointmentStatusCancelled,
		[]model.AppointmentStatus{model.AppointmentStatusPending, model.AppointmentStatusApproved},
		cancelReason, counterparty, model.EventAppointmentCancelled,
		"Appointment cancelled",
		fmt.Sprintf("The appointment for %s has been cancelled.", apt.ScheduledAt.Format("Jan 2, 2006 15:04")))
}

// MarkCompleted moves an approved appointment to completed. Admin-only.
func (s *Service) MarkCompleted(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role != model.UserRoleAdmin || apt.AdminID != caller.UserID {
		return nil, apperrors.Forbidden("only the owning admin can complete this appointment")
	}
	if apt.Status != model.AppointmentStatusApproved {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot complete a %s appointment", apt.Status))
	}

	return s.transition(ctx, apt, model.AppointmentStatusCompleted,
		[]model.AppointmentStatus{model.AppointmentStatusApproved},
		nil, apt.ClientID, model.EventAppointmentCompleted,
		"Appointment completed",
		fmt.Sprintf("Your appointment for %s has been marked completed.", apt.ScheduledAt.Format("Jan 2, 2006 15:04")))
}

// Decline is the admin-side rejection of a pending proposal.
func (s *Service) Decline(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role != model.UserRoleAdmin || apt.AdminID != caller.UserID {
		return nil, apperrors.Forbidden("only the owning admin can decline this appointment")
	}
	if apt.Status != model.AppointmentStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot decline a %s appointment", apt.Status))
	}

	return s.transition(ctx, apt, model.AppointmentStatusDeclined,
		[]model.AppointmentStatus{model.AppointmentStatusPending},
		nil, apt.ClientID, model.EventAppointmentDeclined,
		"Appointment declined",
		fmt.Sprintf("The appointment proposal for %s was declined.", apt.ScheduledAt.Format("Jan 2, 2006 15:04")))
}

// Reopen moves a terminal appointment back to pending. Only available when
// the reopen policy is enabled.
func (s *Service) Reopen(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) (*model.Appointment, error) {
	if !s.cfg.AllowReopen {
		return nil, apperrors.Forbidden("reopening appointments is disabled")
	}

	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role != model.UserRoleAdmin || apt.AdminID != caller.UserID {
		return nil, apperrors.Forbidden("only the owning admin can reopen this appointment")
	}
	if !apt.Status.Terminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot reopen a %s appointment", apt.Status))
	}

	return s.transition(ctx, apt, model.AppointmentStatusPending,
		[]model.AppointmentStatus{model.AppointmentStatusDeclined, model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
		nil, apt.ClientID, model.EventAppointmentProposed,
		"Appointment proposal reopened",
		fmt.Sprintf("The appointment proposal for %s has been reopened.", apt.ScheduledAt.Format("Jan 2, 2006 15:04")))
}

// ResendNotification re-dispatches the appointment notification on the stored
// or overridden channel. Status never changes; notification_sent flips to true
// when at least one channel delivers.
func (s *Service) ResendNotification(ctx context.Context, caller *model.TokenClaims, id uuid.UUID, method string) (*model.DispatchResult, error) {
	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role != model.UserRoleAdmin || apt.AdminID != caller.UserID {
		return nil, apperrors.Forbidden("only the owning admin can resend notifications")
	}

	if method == "" {
		method = apt.NotificationMethod
	}

	client, err := s.userRepo.Get(ctx, apt.ClientID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	result, err := s.notifSvc.Dispatch(ctx, &model.Notification{
		UserID:  apt.ClientID,
		Type:    model.NotificationTypeAppointment,
		Channel: method,
		Title:   "Appointment reminder",
		Content: fmt.Sprintf("Reminder: appointment %s at %s.", apt.ScheduledAt.Format("Jan 2, 2006 15:04"), apt.Location),
		Link:    appointmentLink(apt.ID),
	}, client)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if result.Delivered() {
		if err := s.repo.SetNotificationSent(ctx, apt.ID, true); err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to flag notification_sent")
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, caller *model.TokenClaims, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.AdminID != caller.UserID && apt.ClientID != caller.UserID {
		return nil, apperrors.Forbidden("not a participant of this appointment")
	}
	return apt, nil
}

// List scopes results to the caller: admins see appointments they own,
// clients see appointments assigned to them.
func (s *Service) List(ctx context.Context, caller *model.TokenClaims, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if caller.Role == model.UserRoleAdmin {
		filters.AdminID = caller.UserID
	} else {
		filters.ClientID = caller.UserID
	}

	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return appointments, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return apt, nil
}

// transition performs the conditional status update, emits the outbox event
// and notifies the counterparty. Notification failure never reverts the
// status change; the record wins over the side effect.
func (s *Service) transition(ctx context.Context, apt *model.Appointment, to model.AppointmentStatus, from []model.AppointmentStatus, cancelReason *string, notifyUserID uuid.UUID, eventType, title, content string) (*model.Appointment, error) {
	rows, err := s.repo.UpdateStatus(ctx, apt.ID, to, from, cancelReason)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if rows == 0 {
		return nil, apperrors.Conflict("appointment was modified concurrently")
	}

	apt.Status = to
	apt.UpdatedAt = time.Now()
	if cancelReason != nil {
		apt.CancelReason = cancelReason
	}

	s.emitEvent(ctx, eventType, apt)

	recipient, err := s.userRepo.Get(ctx, notifyUserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", notifyUserID.String()).Msg("failed to load notification recipient")
		return apt, nil
	}
	s.notify(ctx, apt, recipient, apt.NotificationMethod, title, content)

	return apt, nil
}

func (s *Service) notify(ctx context.Context, apt *model.Appointment, recipient *model.User, method, title, content string) {
	result, err := s.notifSvc.Dispatch(ctx, &model.Notification{
		UserID:  recipient.ID,
		Type:    model.NotificationTypeAppointment,
		Channel: method,
		Title:   title,
		Content: content,
		Link:    appointmentLink(apt.ID),
	}, recipient)
	if err != nil {
		log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to dispatch appointment notification")
		return
	}

	if result.Delivered() {
		if err := s.repo.SetNotificationSent(ctx, apt.ID, true); err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to flag notification_sent")
		}
		apt.NotificationSent = true
	}
}

func (s *Service) emitEvent(ctx context.Context, eventType string, apt *model.Appointment) {
	payload, err := json.Marshal(apt)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal appointment event")
		return
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to write outbox event")
	}
}

func (s *Service) validateProposal(req *model.ProposeAppointmentRequest) error {
	if req.ScheduledAt.Before(time.Now()) {
		return apperrors.BadRequest("appointment cannot be scheduled in the past", nil)
	}
	if s.cfg.MaxDurationMinutes > 0 && req.DurationMinutes > s.cfg.MaxDurationMinutes {
		return apperrors.BadRequest(fmt.Sprintf("duration cannot exceed %d minutes", s.cfg.MaxDurationMinutes), nil)
	}
	return nil
}

func responseVerb(status model.AppointmentStatus) string {
	if status == model.AppointmentStatusApproved {
		return "The client approved"
	}
	return "The client declined"
}

func appointmentLink(id uuid.UUID) *string {
	link := "/appointments/" + id.String()
	return &link
}
