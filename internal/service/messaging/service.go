package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/internal/service/notification"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/messaging"
)

const messagePageSize = 50

// Service owns conversations and the messages inside them. Every send
// updates the conversation projection, publishes to the live feed and raises
// an in-app notification for the counterparty.
type Service struct {
	repo     repository.ConversationRepository
	userRepo repository.UserRepository
	outbox   repository.OutboxRepository
	notifSvc notification.Service
	broker   messaging.Broker
}

func NewService(repo repository.ConversationRepository, userRepo repository.UserRepository, outbox repository.OutboxRepository, notifSvc notification.Service, broker messaging.Broker) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		outbox:   outbox,
		notifSvc: notifSvc,
		broker:   broker,
	}
}

// StartConversation opens the conversation between the caller and the given
// counterparty, or returns the existing one. Conversations always pair one
// admin with one client.
func (s *Service) StartConversation(ctx context.Context, caller *model.TokenClaims, participantID uuid.UUID) (*model.Conversation, error) {
	if participantID == caller.UserID {
		return nil, apperrors.BadRequest("cannot start a conversation with yourself", nil)
	}

	other, err := s.userRepo.Get(ctx, participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("participant", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	var adminID, clientID uuid.UUID
	switch {
	case caller.Role == model.UserRoleAdmin && other.Role == model.UserRoleClient:
		adminID, clientID = caller.UserID, participantID
	case caller.Role == model.UserRoleClient && other.Role == model.UserRoleAdmin:
		adminID, clientID = participantID, caller.UserID
	default:
		return nil, apperrors.BadRequest("conversations pair one admin with one client", nil)
	}

	existing, err := s.repo.FindByParticipants(ctx, adminID, clientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	conv := &model.Conversation{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		AdminID:  adminID,
		ClientID: clientID,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, apperrors.Internal(err)
	}
	return conv, nil
}

// SendMessage appends a message, publishes it on the conversation feed and
// raises an in-app notification for the other participant. Feed publication
// is best effort; the stored message is the source of truth.
func (s *Service) SendMessage(ctx context.Context, caller *model.TokenClaims, conversationID uuid.UUID, content string) (*model.Message, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller.UserID) {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       caller.UserID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, apperrors.Internal(err)
	}

	event := &model.MessageEvent{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	if err := s.broker.Publish(ctx, messaging.ConversationChannel(conversationID.String()), event); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to publish message event")
	}

	s.emitEvent(ctx, event)
	s.notifyCounterparty(ctx, conv, msg)

	return msg, nil
}

// ListConversations returns the caller's conversations, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, caller *model.TokenClaims) ([]*model.Conversation, error) {
	conversations, err := s.repo.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return conversations, nil
}

// ListMessages pages through a conversation's history, newest first. A zero
// before time means from the present.
func (s *Service) ListMessages(ctx context.Context, caller *model.TokenClaims, conversationID uuid.UUID, limit int, before time.Time) ([]*model.Message, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller.UserID) {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	if limit <= 0 || limit > 200 {
		limit = messagePageSize
	}
	if before.IsZero() {
		before = time.Now()
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return messages, nil
}

// MarkRead marks every message in the conversation sent by the counterparty as read.
func (s *Service) MarkRead(ctx context.Context, caller *model.TokenClaims, conversationID uuid.UUID) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(caller.UserID) {
		return apperrors.Forbidden("not a participant of this conversation")
	}

	if err := s.repo.MarkMessagesRead(ctx, conversationID, caller.UserID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) getConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("conversation", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return conv, nil
}

func (s *Service) notifyCounterparty(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	recipientID := conv.ClientID
	if msg.SenderID == conv.ClientID {
		recipientID = conv.AdminID
	}

	recipient, err := s.userRepo.Get(ctx, recipientID)
	if err != nil {
		log.Error().Err(err).Str("user_id", recipientID.String()).Msg("failed to load message recipient")
		return
	}

	sender, err := s.userRepo.Get(ctx, msg.SenderID)
	senderName := "A participant"
	if err == nil {
		senderName = sender.Name
	}

	link := "/conversations/" + conv.ID.String()
	if _, err := s.notifSvc.Dispatch(ctx, &model.Notification{
		UserID:  recipientID,
		Type:    model.NotificationTypeMessage,
		Channel: model.NotifyMethodInApp,
		Title:   fmt.Sprintf("New message from %s", senderName),
		Content: msg.Content,
		Link:    &link,
	}, recipient); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", conv.ID.String()).
			Msg("failed to dispatch message notification")
	}
}

func (s *Service) emitEvent(ctx context.Context, event *model.MessageEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message event")
		return
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventMessageSent,
		Payload:   payload,
	}); err != nil {
		log.Error().Err(err).Msg("failed to write message outbox event")
	}
}
