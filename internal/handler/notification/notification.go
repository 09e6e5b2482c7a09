package notification

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	notificationservice "github.com/managethefans/portal-api/internal/service/notification"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc notificationservice.Service
}

func NewHandler(svc notificationservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the notification endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.GET("/unread-count", h.CountUnread)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/read-all", h.MarkAllRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.svc.ListForUser(c.Request.Context(), claims.UserID, unreadOnly, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, notifications)
}

func (h *Handler) CountUnread(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)

	count, err := h.svc.CountUnread(c.Request.Context(), claims.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"count": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid notification ID", err))
		return
	}

	claims := middleware.ClaimsFromContext(c)
	if err := h.svc.MarkRead(c.Request.Context(), id, claims.UserID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	if err := h.svc.MarkAllRead(c.Request.Context(), claims.UserID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}
