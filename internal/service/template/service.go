package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/internal/repository"
	"github.com/managethefans/portal-api/internal/service/notification"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

// placeholderPattern matches {{token}} with optional inner whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Service manages communication templates and the send-communication flow:
// render a template with caller-supplied params, dispatch on the requested
// channel and log the outcome.
type Service struct {
	repo     repository.TemplateRepository
	userRepo repository.UserRepository
	notifSvc notification.Service
}

func NewService(repo repository.TemplateRepository, userRepo repository.UserRepository, notifSvc notification.Service) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		notifSvc: notifSvc,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateTemplateRequest) (*model.CommunicationTemplate, error) {
	if _, err := s.repo.GetByName(ctx, req.Name); err == nil {
		return nil, apperrors.Conflict(fmt.Sprintf("template %q already exists", req.Name))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	tpl := &model.CommunicationTemplate{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:    req.Name,
		Type:    req.Type,
		Subject: req.Subject,
		Content: req.Content,
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, apperrors.Internal(err)
	}
	return tpl, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.CommunicationTemplate, error) {
	return s.get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateTemplateRequest) (*model.CommunicationTemplate, error) {
	tpl, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.Type != nil {
		tpl.Type = *req.Type
	}
	if req.Subject != nil {
		tpl.Subject = *req.Subject
	}
	if req.Content != nil {
		tpl.Content = *req.Content
	}
	tpl.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, tpl); err != nil {
		return nil, apperrors.Internal(err)
	}
	return tpl, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, templateType string) ([]*model.CommunicationTemplate, error) {
	templates, err := s.repo.List(ctx, templateType)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return templates, nil
}

// Render substitutes {{placeholder}} tokens in content with params. Every
// token must resolve; an unresolved token is a bad request, not a silent blank.
func Render(content string, params map[string]string) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := strings.TrimSpace(strings.Trim(match, "{}"))
		value, ok := params[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return rendered, nil
}

// SendCommunication renders the template (or uses raw content when no
// template is given), dispatches on the requested channel and records the
// send in the communication log. Delivery failure is recorded, not hidden.
func (s *Service) SendCommunication(ctx context.Context, sender *model.TokenClaims, req *model.SendCommunicationRequest) (*model.SentCommunication, error) {
	if sender.Role != model.UserRoleAdmin {
		return nil, apperrors.Forbidden("only admins can send communications")
	}

	recipient, err := s.userRepo.Get(ctx, req.RecipientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("recipient", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	subject := req.Subject
	content := req.Content
	if req.TemplateID != nil {
		tpl, err := s.get(ctx, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		if subject == "" {
			subject = tpl.Subject
		}
		content = tpl.Content
	}
	if content == "" {
		return nil, apperrors.BadRequest("content or template_id is required", nil)
	}

	rendered, err := Render(content, req.Params)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	renderedSubject, err := Render(subject, req.Params)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	title := renderedSubject
	if title == "" {
		title = "Message from your agency"
	}

	result, err := s.notifSvc.Dispatch(ctx, &model.Notification{
		UserID:  recipient.ID,
		Type:    model.NotificationTypeCommunication,
		Channel: req.Channel,
		Title:   title,
		Content: rendered,
	}, recipient)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	sent := &model.SentCommunication{
		ID:          uuid.New(),
		RecipientID: recipient.ID,
		SenderID:    sender.UserID,
		TemplateID:  req.TemplateID,
		Channel:     req.Channel,
		Subject:     renderedSubject,
		Content:     rendered,
		Delivered:   result.Delivered(),
		CreatedAt:   time.Now(),
	}
	if err := s.repo.RecordSent(ctx, sent); err != nil {
		log.Error().Err(err).
			Str("recipient_id", recipient.ID.String()).
			Msg("failed to record sent communication")
	}
	return sent, nil
}

// ListSent returns the communication log for one recipient, newest first.
func (s *Service) ListSent(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.SentCommunication, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	history, err := s.repo.ListSent(ctx, recipientID, limit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return history, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.CommunicationTemplate, error) {
	tpl, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("template", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return tpl, nil
}
