package appointment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/model"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
)

type fakeAppointmentRepo struct {
	appointments map[uuid.UUID]*model.Appointment
	// raceTo, when set, flips the row to this status right before the next
	// conditional update, simulating a concurrent writer winning.
	raceTo model.AppointmentStatus
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (r *fakeAppointmentRepo) Create(_ context.Context, apt *model.Appointment) error {
	r.appointments[apt.ID] = apt
	return nil
}

func (r *fakeAppointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := r.appointments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *apt
	return &copied, nil
}

func (r *fakeAppointmentRepo) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, apt := range r.appointments {
		if filters.AdminID != uuid.Nil && apt.AdminID != filters.AdminID {
			continue
		}
		if filters.ClientID != uuid.Nil && apt.ClientID != filters.ClientID {
			continue
		}
		if filters.Status != "" && apt.Status != filters.Status {
			continue
		}
		out = append(out, apt)
	}
	return out, nil
}

func (r *fakeAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, to model.AppointmentStatus, from []model.AppointmentStatus, cancelReason *string) (int64, error) {
	apt, ok := r.appointments[id]
	if !ok {
		return 0, nil
	}
	if r.raceTo != "" {
		apt.Status = r.raceTo
		r.raceTo = ""
	}
	for _, f := range from {
		if apt.Status == f {
			apt.Status = to
			if cancelReason != nil {
				apt.CancelReason = cancelReason
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeAppointmentRepo) SetNotificationSent(_ context.Context, id uuid.UUID, sent bool) error {
	if apt, ok := r.appointments[id]; ok {
		apt.NotificationSent = sent
	}
	return nil
}

func (r *fakeAppointmentRepo) CountUpcoming(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return 0, nil
}

func (r *fakeAppointmentRepo) ListUpcoming(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]*model.Appointment, error) {
	return nil, nil
}

func (r *fakeAppointmentRepo) CountByStatus(_ context.Context, _ uuid.UUID, _ model.AppointmentStatus) (int, error) {
	return 0, nil
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

func (r *fakeUserRepo) SetStripeCustomer(_ context.Context, id uuid.UUID, customerID string) error {
	if u, ok := r.users[id]; ok {
		u.StripeCustomer = &customerID
	}
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
	fail       bool
}

func (n *fakeNotifier) Dispatch(_ context.Context, notif *model.Notification, _ *model.User) (*model.DispatchResult, error) {
	notif.ID = uuid.New()
	n.dispatched = append(n.dispatched, notif)
	return &model.DispatchResult{
		NotificationID: notif.ID,
		Results:        []model.ChannelResult{{Channel: notif.Channel, Sent: !n.fail, Error: errText(n.fail)}},
	}, nil
}

func errText(fail bool) string {
	if fail {
		return "smtp unavailable"
	}
	return ""
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

type fixture struct {
	svc      *Service
	repo     *fakeAppointmentRepo
	outbox   *fakeOutboxRepo
	notifier *fakeNotifier
	admin    *model.User
	client   *model.User
}

func newFixture(t *testing.T, cfg config.AppointmentsConfig) *fixture {
	t.Helper()

	admin := &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "admin@agency.test",
		Name:  "Agency Admin",
		Role:  model.UserRoleAdmin,
	}
	client := &model.User{
		Base:            model.Base{ID: uuid.New()},
		Email:           "client@agency.test",
		Name:            "Creator Client",
		Role:            model.UserRoleClient,
		NotifyByDefault: model.NotifyMethodEmail,
	}

	repo := newFakeAppointmentRepo()
	outbox := &fakeOutboxRepo{}
	notifier := &fakeNotifier{}

	return &fixture{
		svc:      NewService(repo, newFakeUserRepo(admin, client), outbox, notifier, cfg),
		repo:     repo,
		outbox:   outbox,
		notifier: notifier,
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

func (f *fixture) proposal() *model.ProposeAppointmentRequest {
	return &model.ProposeAppointmentRequest{
		ClientID:        f.client.ID,
		ScheduledAt:     time.Now().Add(48 * time.Hour),
		DurationMinutes: 60,
		Location:        "Studio A",
		AmountCents:     15000,
	}
}

func TestPropose(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{MaxDurationMinutes: 480})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, f.admin.ID, apt.AdminID)
	assert.Equal(t, f.client.ID, apt.ClientID)
	assert.Equal(t, model.NotifyMethodEmail, apt.NotificationMethod)
	assert.True(t, apt.NotificationSent)

	require.Len(t, f.notifier.dispatched, 1)
	assert.Equal(t, f.client.ID, f.notifier.dispatched[0].UserID)
	assert.Equal(t, model.NotificationTypeAppointment, f.notifier.dispatched[0].Type)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, model.EventAppointmentProposed, f.outbox.events[0].EventType)
}

func TestProposeRequiresAdmin(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	_, err := f.svc.Propose(context.Background(), f.clientClaims(), f.proposal())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestProposeRejectsPastSchedule(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	req := f.proposal()
	req.ScheduledAt = time.Now().Add(-time.Hour)

	_, err := f.svc.Propose(context.Background(), f.adminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestProposeNotificationFailureKeepsAppointment(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})
	f.notifier.fail = true

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.False(t, apt.NotificationSent)

	stored, err := f.repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.False(t, stored.NotificationSent)
}

func TestRespondApprove(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	updated, err := f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusApproved, updated.Status)

	// proposal notification to client + response notification to admin
	require.Len(t, f.notifier.dispatched, 2)
	assert.Equal(t, f.admin.ID, f.notifier.dispatched[1].UserID)
}

func TestRespondForbiddenForNonAssignedCaller(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	stranger := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}
	_, err = f.svc.Respond(context.Background(), stranger, apt.ID, model.AppointmentStatusApproved)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = f.svc.Respond(context.Background(), f.adminClaims(), apt.ID, model.AppointmentStatusApproved)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestRespondConflictWhenNotPending(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusApproved)
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusDeclined)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestRespondLostRaceSurfacesConflict(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	// another request wins between the read and the conditional update
	f.repo.raceTo = model.AppointmentStatusCancelled

	_, err = f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusApproved)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestCancelByClientNotifiesAdmin(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	reason := "schedule conflict"
	updated, err := f.svc.Cancel(context.Background(), f.clientClaims(), apt.ID, reason)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelReason)
	assert.Equal(t, reason, *updated.CancelReason)

	require.Len(t, f.notifier.dispatched, 2)
	assert.Equal(t, f.admin.ID, f.notifier.dispatched[1].UserID)
}

func TestCancelCompletedConflicts(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)
	_, err = f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusApproved)
	require.NoError(t, err)
	_, err = f.svc.MarkCompleted(context.Background(), f.adminClaims(), apt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.adminClaims(), apt.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestMarkCompletedRequiresApproved(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	_, err = f.svc.MarkCompleted(context.Background(), f.adminClaims(), apt.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestDecline(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	updated, err := f.svc.Decline(context.Background(), f.adminClaims(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusDeclined, updated.Status)

	_, err = f.svc.Decline(context.Background(), f.clientClaims(), apt.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestReopenDisabledByDefault(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)
	_, err = f.svc.Decline(context.Background(), f.adminClaims(), apt.ID)
	require.NoError(t, err)

	_, err = f.svc.Reopen(context.Background(), f.adminClaims(), apt.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestReopenWhenEnabled(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{AllowReopen: true})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)
	_, err = f.svc.Decline(context.Background(), f.adminClaims(), apt.ID)
	require.NoError(t, err)

	updated, err := f.svc.Reopen(context.Background(), f.adminClaims(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, updated.Status)
}

func TestResendNotificationKeepsStatus(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)
	_, err = f.svc.Respond(context.Background(), f.clientClaims(), apt.ID, model.AppointmentStatusApproved)
	require.NoError(t, err)

	result, err := f.svc.ResendNotification(context.Background(), f.adminClaims(), apt.ID, model.NotifyMethodSMS)
	require.NoError(t, err)
	assert.True(t, result.Delivered())

	stored, err := f.repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusApproved, stored.Status)
	assert.True(t, stored.NotificationSent)

	last := f.notifier.dispatched[len(f.notifier.dispatched)-1]
	assert.Equal(t, model.NotifyMethodSMS, last.Channel)
}

func TestListScopesToCaller(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	_, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	adminList, err := f.svc.List(context.Background(), f.adminClaims(), &model.AppointmentFilters{})
	require.NoError(t, err)
	assert.Len(t, adminList, 1)

	clientList, err := f.svc.List(context.Background(), f.clientClaims(), &model.AppointmentFilters{})
	require.NoError(t, err)
	assert.Len(t, clientList, 1)

	stranger := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}
	strangerList, err := f.svc.List(context.Background(), stranger, &model.AppointmentFilters{})
	require.NoError(t, err)
	assert.Empty(t, strangerList)
}

func TestGetForbiddenForOutsider(t *testing.T) {
	f := newFixture(t, config.AppointmentsConfig{})

	apt, err := f.svc.Propose(context.Background(), f.adminClaims(), f.proposal())
	require.NoError(t, err)

	stranger := &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient}
	_, err = f.svc.Get(context.Background(), stranger, apt.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}
