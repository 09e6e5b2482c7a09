package template

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managethefans/portal-api/internal/model"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

type fakeTemplateRepo struct {
	templates map[uuid.UUID]*model.CommunicationTemplate
	sent      []*model.SentCommunication
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[uuid.UUID]*model.CommunicationTemplate)}
}

func (r *fakeTemplateRepo) Create(_ context.Context, tpl *model.CommunicationTemplate) error {
	r.templates[tpl.ID] = tpl
	return nil
}

func (r *fakeTemplateRepo) Get(_ context.Context, id uuid.UUID) (*model.CommunicationTemplate, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tpl, nil
}

func (r *fakeTemplateRepo) GetByName(_ context.Context, name string) (*model.CommunicationTemplate, error) {
	for _, tpl := range r.templates {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeTemplateRepo) Update(_ context.Context, tpl *model.CommunicationTemplate) error {
	r.templates[tpl.ID] = tpl
	return nil
}

func (r *fakeTemplateRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.templates, id)
	return nil
}

func (r *fakeTemplateRepo) List(_ context.Context, templateType string) ([]*model.CommunicationTemplate, error) {
	var out []*model.CommunicationTemplate
	for _, tpl := range r.templates {
		if templateType == "" || tpl.Type == templateType {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) RecordSent(_ context.Context, sent *model.SentCommunication) error {
	r.sent = append(r.sent, sent)
	return nil
}

func (r *fakeTemplateRepo) ListSent(_ context.Context, recipientID uuid.UUID, _ int) ([]*model.SentCommunication, error) {
	var out []*model.SentCommunication
	for _, sent := range r.sent {
		if sent.RecipientID == recipientID {
			out = append(out, sent)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _ *model.UserFilters) ([]*model.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) SetStripeCustomer(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

type fakeNotifier struct {
	dispatched []*model.Notification
	fail       bool
}

func (n *fakeNotifier) Dispatch(_ context.Context, notif *model.Notification, _ *model.User) (*model.DispatchResult, error) {
	notif.ID = uuid.New()
	n.dispatched = append(n.dispatched, notif)
	res := model.ChannelResult{Channel: notif.Channel, Sent: !n.fail}
	if n.fail {
		res.Error = "delivery failed"
	}
	return &model.DispatchResult{NotificationID: notif.ID, Results: []model.ChannelResult{res}}, nil
}

func (n *fakeNotifier) Retry(ctx context.Context, notif *model.Notification, recipient *model.User) (*model.DispatchResult, error) {
	return n.Dispatch(ctx, notif, recipient)
}

func (n *fakeNotifier) ListForUser(_ context.Context, _ uuid.UUID, _ bool, _ int) ([]*model.Notification, error) {
	return nil, nil
}

func (n *fakeNotifier) MarkRead(_ context.Context, _, _ uuid.UUID) error { return nil }

func (n *fakeNotifier) MarkAllRead(_ context.Context, _ uuid.UUID) error { return nil }

func (n *fakeNotifier) CountUnread(_ context.Context, _ uuid.UUID) (int, error) { return 0, nil }

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		content string
		params  map[string]string
		want    string
		wantErr bool
	}{
		{
			name:    "simple substitution",
			content: "Hi {{name}}, your appointment is at {{time}}.",
			params:  map[string]string{"name": "Ava", "time": "3pm"},
			want:    "Hi Ava, your appointment is at 3pm.",
		},
		{
			name:    "whitespace inside braces",
			content: "Hi {{ name }}!",
			params:  map[string]string{"name": "Ava"},
			want:    "Hi Ava!",
		},
		{
			name:    "no placeholders",
			content: "Static content.",
			params:  nil,
			want:    "Static content.",
		},
		{
			name:    "unresolved placeholder",
			content: "Hi {{name}}, see you {{when}}.",
			params:  map[string]string{"name": "Ava"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.content, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "when")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newService(t *testing.T, recipient *model.User) (*Service, *fakeTemplateRepo, *fakeNotifier) {
	t.Helper()
	repo := newFakeTemplateRepo()
	notifier := &fakeNotifier{}
	return NewService(repo, newFakeUserRepo(recipient), notifier), repo, notifier
}

func client() *model.User {
	return &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "client@agency.test",
		Name:  "Creator Client",
		Role:  model.UserRoleClient,
	}
}

func adminClaims() *model.TokenClaims {
	return &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleAdmin}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _, _ := newService(t, client())

	_, err := svc.Create(context.Background(), &model.CreateTemplateRequest{
		Name:    "welcome",
		Type:    model.TemplateTypeEmail,
		Content: "Welcome {{name}}",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), &model.CreateTemplateRequest{
		Name:    "welcome",
		Type:    model.TemplateTypeSMS,
		Content: "Welcome",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestSendCommunicationWithTemplate(t *testing.T) {
	recipient := client()
	svc, repo, notifier := newService(t, recipient)

	tpl, err := svc.Create(context.Background(), &model.CreateTemplateRequest{
		Name:    "reminder",
		Type:    model.TemplateTypeEmail,
		Subject: "Reminder for {{name}}",
		Content: "Hi {{name}}, see you at {{time}}.",
	})
	require.NoError(t, err)

	sent, err := svc.SendCommunication(context.Background(), adminClaims(), &model.SendCommunicationRequest{
		RecipientID: recipient.ID,
		TemplateID:  &tpl.ID,
		Channel:     model.NotifyMethodEmail,
		Params:      map[string]string{"name": "Ava", "time": "3pm"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi Ava, see you at 3pm.", sent.Content)
	assert.Equal(t, "Reminder for Ava", sent.Subject)
	assert.True(t, sent.Delivered)

	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, model.NotificationTypeCommunication, notifier.dispatched[0].Type)

	require.Len(t, repo.sent, 1)
	assert.Equal(t, recipient.ID, repo.sent[0].RecipientID)
}

func TestSendCommunicationUnresolvedPlaceholder(t *testing.T) {
	recipient := client()
	svc, _, notifier := newService(t, recipient)

	tpl, err := svc.Create(context.Background(), &model.CreateTemplateRequest{
		Name:    "reminder",
		Type:    model.TemplateTypeEmail,
		Content: "Hi {{name}}, see you at {{time}}.",
	})
	require.NoError(t, err)

	_, err = svc.SendCommunication(context.Background(), adminClaims(), &model.SendCommunicationRequest{
		RecipientID: recipient.ID,
		TemplateID:  &tpl.ID,
		Channel:     model.NotifyMethodEmail,
		Params:      map[string]string{"name": "Ava"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
	assert.Empty(t, notifier.dispatched)
}

func TestSendCommunicationRawContent(t *testing.T) {
	recipient := client()
	svc, repo, _ := newService(t, recipient)

	sent, err := svc.SendCommunication(context.Background(), adminClaims(), &model.SendCommunicationRequest{
		RecipientID: recipient.ID,
		Channel:     model.NotifyMethodInApp,
		Subject:     "Heads up",
		Content:     "Schedule change tomorrow.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Schedule change tomorrow.", sent.Content)
	require.Len(t, repo.sent, 1)
}

func TestSendCommunicationRequiresAdmin(t *testing.T) {
	recipient := client()
	svc, _, _ := newService(t, recipient)

	clientCaller := &model.TokenClaims{UserID: recipient.ID, Role: model.UserRoleClient}
	_, err := svc.SendCommunication(context.Background(), clientCaller, &model.SendCommunicationRequest{
		RecipientID: recipient.ID,
		Channel:     model.NotifyMethodEmail,
		Content:     "hi",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestSendCommunicationRecordsFailedDelivery(t *testing.T) {
	recipient := client()
	svc, repo, notifier := newService(t, recipient)
	notifier.fail = true

	sent, err := svc.SendCommunication(context.Background(), adminClaims(), &model.SendCommunicationRequest{
		RecipientID: recipient.ID,
		Channel:     model.NotifyMethodEmail,
		Content:     "hello",
	})
	require.NoError(t, err)
	assert.False(t, sent.Delivered)
	require.Len(t, repo.sent, 1)
	assert.False(t, repo.sent[0].Delivered)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _, _ := newService(t, client())

	tpl, err := svc.Create(context.Background(), &model.CreateTemplateRequest{
		Name:    "welcome",
		Type:    model.TemplateTypeEmail,
		Content: "Welcome",
	})
	require.NoError(t, err)

	newContent := "Welcome aboard, {{name}}"
	updated, err := svc.Update(context.Background(), tpl.ID, &model.UpdateTemplateRequest{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)
	assert.True(t, updated.UpdatedAt.After(time.Time{}))

	require.NoError(t, svc.Delete(context.Background(), tpl.ID))

	_, err = svc.Get(context.Background(), tpl.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}
