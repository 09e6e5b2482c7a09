package messaging

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managethefans/portal-api/internal/model"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

type fakeConversationRepo struct {
	conversations map[uuid.UUID]*model.Conversation
	messages      map[uuid.UUID][]*model.Message
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[uuid.UUID]*model.Conversation),
		messages:      make(map[uuid.UUID][]*model.Message),
	}
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *model.Conversation) error {
	r.conversations[conv.ID] = conv
	return nil
}

func (r *fakeConversationRepo) Get(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return conv, nil
}

func (r *fakeConversationRepo) FindByParticipants(_ context.Context, adminID, clientID uuid.UUID) (*model.Conversation, error) {
	for _, conv := range r.conversations {
		if conv.AdminID == adminID && conv.ClientID == clientID {
			return conv, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeConversationRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*model.Conversation, error) {
	var out []*model.Conversation
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) AppendMessage(_ context.Context, msg *model.Message) error {
	conv, ok := r.conversations[msg.ConversationID]
	if !ok {
		return sql.ErrNoRows
	}
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	conv.LastMessage = &msg.Content
	conv.LastSenderID = &msg.SenderID
	conv.LastMessageAt = &msg.CreatedAt
	return nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]*model.Message, error) {
	var out []*model.Message
	for _, msg := range r.messages[conversationID] {
		if msg.CreatedAt.Before(before) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeConversationRepo) MarkMessagesRead(_ context.Context, conversationID, readerID uuid.UUID) error {
	for _, msg := range r.messages[conversationID] {
		if msg.SenderID != readerID {
			msg.Read = true
		}
	}
	return nil
}

func (r *fakeConversationRepo) CountUnreadMessages(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for id, conv := range r.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		for _, msg := range r.messages[id] {
			if msg.SenderID != userID && !msg.Read {
				count++
			}
		}
	}
	return count, nil
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

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
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

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEvents(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return r.events, nil
}

func (r *fakeOutboxRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string, _ *time.Time) error {
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	dispatched []*model.Notification
}

func (n *fakeNotifier) Dispatch(_ context.Context, notif *model.Notification, _ *model.User) (*model.DispatchResult, error) {
	notif.ID = uuid.New()
	n.dispatched = append(n.dispatched, notif)
	return &model.DispatchResult{
		NotificationID: notif.ID,
		Results:        []model.ChannelResult{{Channel: notif.Channel, Sent: true}},
	}, nil
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

type fakeBroker struct {
	published map[string][]interface{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(map[string][]interface{})}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.published[channel] = append(b.published[channel], message)
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBroker) Close() error { return nil }

type fixture struct {
	svc      *Service
	repo     *fakeConversationRepo
	broker   *fakeBroker
	notifier *fakeNotifier
	outbox   *fakeOutboxRepo
	admin    *model.User
	client   *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	admin := &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "admin@agency.test",
		Name:  "Agency Admin",
		Role:  model.UserRoleAdmin,
	}
	client := &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "client@agency.test",
		Name:  "Creator Client",
		Role:  model.UserRoleClient,
	}

	repo := newFakeConversationRepo()
	broker := newFakeBroker()
	notifier := &fakeNotifier{}
	outbox := &fakeOutboxRepo{}

	return &fixture{
		svc:      NewService(repo, newFakeUserRepo(admin, client), outbox, notifier, broker),
		repo:     repo,
		broker:   broker,
		notifier: notifier,
		outbox:   outbox,
		admin:    admin,
		client:   client,
	}
}

func (f *fixture) adminClaims() *model.TokenClaims {
	return &model.TokenClaims{UserID: f.admin.ID, Email: f.admin.Email, Role: model.UserRoleAdmin}
}

func (f *fixture) clientClaims() *model.TokenClaims {
	return &model.TokenClaims{UserID: f.client.ID, Email: f.client.Email, Role: model.UserRoleClient}
}

func TestStartConversation(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, conv.AdminID)
	assert.Equal(t, f.client.ID, conv.ClientID)

	// starting again from either side returns the same conversation
	again, err := f.svc.StartConversation(context.Background(), f.clientClaims(), f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestStartConversationRejectsSelf(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.admin.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestStartConversationRequiresAdminClientPair(t *testing.T) {
	f := newFixture(t)

	otherClient := &model.User{
		Base: model.Base{ID: uuid.New()},
		Role: model.UserRoleClient,
	}
	require.NoError(t, f.svc.userRepo.Create(context.Background(), otherClient))

	_, err := f.svc.StartConversation(context.Background(), f.clientClaims(), otherClient.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestSendMessagePublishesAndNotifies(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.client.ID)
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(context.Background(), f.adminClaims(), conv.ID, "hello there")
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, msg.SenderID)

	// conversation projection updated
	stored, err := f.repo.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "hello there", *stored.LastMessage)

	// live feed publication
	feed := f.broker.published["conversations:"+conv.ID.String()]
	require.Len(t, feed, 1)

	// counterparty got an in-app notification
	require.Len(t, f.notifier.dispatched, 1)
	assert.Equal(t, f.client.ID, f.notifier.dispatched[0].UserID)
	assert.Equal(t, model.NotificationTypeMessage, f.notifier.dispatched[0].Type)
	assert.Equal(t, model.NotifyMethodInApp, f.notifier.dispatched[0].Channel)

	// outbox event written
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, model.EventMessageSent, f.outbox.events[0].EventType)
}

func TestSendMessageForbiddenForOutsider(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.client.ID)
	require.NoError(t, err)

	stranger := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}
	_, err = f.svc.SendMessage(context.Background(), stranger, conv.ID, "let me in")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestListMessagesNewestFirst(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.client.ID)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(context.Background(), f.adminClaims(), conv.ID, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.SendMessage(context.Background(), f.clientClaims(), conv.ID, "second")
	require.NoError(t, err)

	messages, err := f.svc.ListMessages(context.Background(), f.adminClaims(), conv.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "second", messages[0].Content)
	assert.Equal(t, "first", messages[1].Content)
}

func TestMarkReadOnlyCounterpartyMessages(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.StartConversation(context.Background(), f.adminClaims(), f.client.ID)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(context.Background(), f.adminClaims(), conv.ID, "from admin")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(context.Background(), f.clientClaims(), conv.ID, "from client")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(context.Background(), f.clientClaims(), conv.ID))

	unreadClient, err := f.repo.CountUnreadMessages(context.Background(), f.client.ID)
	require.NoError(t, err)
	assert.Zero(t, unreadClient)

	unreadAdmin, err := f.repo.CountUnreadMessages(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unreadAdmin)
}
