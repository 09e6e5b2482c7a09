package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type fakeService struct {
	notifications []*model.Notification
	markedRead    []uuid.UUID
	markedAllFor  []uuid.UUID
}

func (f *fakeService) Dispatch(_ context.Context, _ *model.Notification, _ *model.User) (*model.DispatchResult, error) {
	return nil, nil
}

func (f *fakeService) Retry(_ context.Context, _ *model.Notification, _ *model.User) (*model.DispatchResult, error) {
	return nil, nil
}

func (f *fakeService) ListForUser(_ context.Context, userID uuid.UUID, unreadOnly bool, _ int) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, n := range f.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeService) MarkRead(_ context.Context, id, _ uuid.UUID) error {
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeService) MarkAllRead(_ context.Context, userID uuid.UUID) error {
	f.markedAllFor = append(f.markedAllFor, userID)
	return nil
}

func (f *fakeService) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func setupRouter(svc *fakeService, caller *model.TokenClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := engine.Group("/api/v1")
	group.Use(func(c *gin.Context) {
		c.Set(middleware.ContextClaims, caller)
	})
	NewHandler(svc).RegisterRoutes(group)
	return engine
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestListUnreadOnly(t *testing.T) {
	userID := uuid.New()
	svc := &fakeService{notifications: []*model.Notification{
		{ID: uuid.New(), UserID: userID, Title: "unread", CreatedAt: time.Now()},
		{ID: uuid.New(), UserID: userID, Title: "read", Read: true, CreatedAt: time.Now()},
		{ID: uuid.New(), UserID: uuid.New(), Title: "someone else's"},
	}}
	engine := setupRouter(svc, &model.TokenClaims{UserID: userID, Role: model.UserRoleClient})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "success", resp.Status)

	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestUnreadCount(t *testing.T) {
	userID := uuid.New()
	svc := &fakeService{notifications: []*model.Notification{
		{ID: uuid.New(), UserID: userID},
		{ID: uuid.New(), UserID: userID},
	}}
	engine := setupRouter(svc, &model.TokenClaims{UserID: userID, Role: model.UserRoleClient})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["count"])
}

func TestMarkReadRejectsBadID(t *testing.T) {
	svc := &fakeService{}
	engine := setupRouter(svc, &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/not-a-uuid/read", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, svc.markedRead)
}

func TestMarkRead(t *testing.T) {
	svc := &fakeService{}
	engine := setupRouter(svc, &model.TokenClaims{UserID: uuid.New(), Role: model.UserRoleClient})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+id.String()+"/read", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.markedRead, 1)
	assert.Equal(t, id, svc.markedRead[0])
}

func TestMarkAllRead(t *testing.T) {
	userID := uuid.New()
	svc := &fakeService{}
	engine := setupRouter(svc, &model.TokenClaims{UserID: userID, Role: model.UserRoleClient})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{userID}, svc.markedAllFor)
}
