package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managethefans/portal-api/internal/model"
)

type countingNotifRepo struct {
	unread int
	calls  int
}

func (r *countingNotifRepo) Create(_ context.Context, _ *model.Notification) error { return nil }

func (r *countingNotifRepo) Get(_ context.Context, _ uuid.UUID) (*model.Notification, error) {
	return nil, nil
}

func (r *countingNotifRepo) Update(_ context.Context, _ *model.Notification) error { return nil }

func (r *countingNotifRepo) ListForUser(_ context.Context, _ uuid.UUID, _ bool, _ int) ([]*model.Notification, error) {
	return nil, nil
}

func (r *countingNotifRepo) MarkRead(_ context.Context, _, _ uuid.UUID) error { return nil }

func (r *countingNotifRepo) MarkAllRead(_ context.Context, _ uuid.UUID) error { return nil }

func (r *countingNotifRepo) CountUnread(_ context.Context, _ uuid.UUID) (int, error) {
	r.calls++
	return r.unread, nil
}

func (r *countingNotifRepo) ListRetryable(_ context.Context, _ time.Time, _ int) ([]*model.Notification, error) {
	return nil, nil
}

type stubConvRepo struct {
	unread int
}

func (r *stubConvRepo) Create(_ context.Context, _ *model.Conversation) error { return nil }

func (r *stubConvRepo) Get(_ context.Context, _ uuid.UUID) (*model.Conversation, error) {
	return nil, nil
}

func (r *stubConvRepo) FindByParticipants(_ context.Context, _, _ uuid.UUID) (*model.Conversation, error) {
	return nil, nil
}

func (r *stubConvRepo) ListForUser(_ context.Context, _ uuid.UUID) ([]*model.Conversation, error) {
	return nil, nil
}

func (r *stubConvRepo) AppendMessage(_ context.Context, _ *model.Message) error { return nil }

func (r *stubConvRepo) ListMessages(_ context.Context, _ uuid.UUID, _ int, _ time.Time) ([]*model.Message, error) {
	return nil, nil
}

func (r *stubConvRepo) MarkMessagesRead(_ context.Context, _, _ uuid.UUID) error { return nil }

func (r *stubConvRepo) CountUnreadMessages(_ context.Context, _ uuid.UUID) (int, error) {
	return r.unread, nil
}

type stubAptRepo struct {
	upcoming int
	pending  int
	list     []*model.Appointment
}

func (r *stubAptRepo) Create(_ context.Context, _ *model.Appointment) error { return nil }

func (r *stubAptRepo) Get(_ context.Context, _ uuid.UUID) (*model.Appointment, error) {
	return nil, nil
}

func (r *stubAptRepo) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	return nil, nil
}

func (r *stubAptRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.AppointmentStatus, _ []model.AppointmentStatus, _ *string) (int64, error) {
	return 0, nil
}

func (r *stubAptRepo) SetNotificationSent(_ context.Context, _ uuid.UUID, _ bool) error { return nil }

func (r *stubAptRepo) CountUpcoming(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return r.upcoming, nil
}

func (r *stubAptRepo) ListUpcoming(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]*model.Appointment, error) {
	return r.list, nil
}

func (r *stubAptRepo) CountByStatus(_ context.Context, _ uuid.UUID, _ model.AppointmentStatus) (int, error) {
	return r.pending, nil
}

func TestGetDashboard(t *testing.T) {
	notifRepo := &countingNotifRepo{unread: 3}
	convRepo := &stubConvRepo{unread: 2}
	aptRepo := &stubAptRepo{
		upcoming: 4,
		pending:  1,
		list:     []*model.Appointment{{Base: model.Base{ID: uuid.New()}}},
	}
	svc := NewService(notifRepo, convRepo, aptRepo)

	caller := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}
	dash, err := svc.GetDashboard(context.Background(), caller)
	require.NoError(t, err)

	assert.Equal(t, 3, dash.UnreadNotifications)
	assert.Equal(t, 2, dash.UnreadMessages)
	assert.Equal(t, 4, dash.UpcomingCount)
	assert.Equal(t, 1, dash.PendingProposals)
	assert.Len(t, dash.Upcoming, 1)
}

func TestGetDashboardServedFromCache(t *testing.T) {
	notifRepo := &countingNotifRepo{unread: 3}
	svc := NewService(notifRepo, &stubConvRepo{}, &stubAptRepo{})

	caller := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}

	_, err := svc.GetDashboard(context.Background(), caller)
	require.NoError(t, err)
	_, err = svc.GetDashboard(context.Background(), caller)
	require.NoError(t, err)

	assert.Equal(t, 1, notifRepo.calls)

	// invalidation forces a rebuild
	svc.Invalidate(caller.UserID.String())
	_, err = svc.GetDashboard(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, 2, notifRepo.calls)
}

func TestGetDashboardPerUserCache(t *testing.T) {
	notifRepo := &countingNotifRepo{}
	svc := NewService(notifRepo, &stubConvRepo{}, &stubAptRepo{})

	_, err := svc.GetDashboard(context.Background(), &model.TokenClaims{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.GetDashboard(context.Background(), &model.TokenClaims{UserID: uuid.New()})
	require.NoError(t, err)

	assert.Equal(t, 2, notifRepo.calls)
}
