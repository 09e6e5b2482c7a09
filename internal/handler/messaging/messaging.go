package messaging

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/model"
	messagingservice "github.com/managethefans/portal-api/internal/service/messaging"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc *messagingservice.Service
}

func NewHandler(svc *messagingservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the conversation endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.List)
		conversations.POST("", h.Start)
		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/messages", h.Send)
		conversations.POST("/:id/read", h.MarkRead)
	}
}

func (h *Handler) Start(c *gin.Context) {
	var req model.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	conv, err := h.svc.StartConversation(c.Request.Context(), middleware.ClaimsFromContext(c), req.ParticipantID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, conv)
}

func (h *Handler) List(c *gin.Context) {
	conversations, err := h.svc.ListConversations(c.Request.Context(), middleware.ClaimsFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, conversations)
}

func (h *Handler) Send(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid conversation ID", err))
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), middleware.ClaimsFromContext(c), id, req.Content)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid conversation ID", err))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid before cursor", err))
			return
		}
	}

	messages, err := h.svc.ListMessages(c.Request.Context(), middleware.ClaimsFromContext(c), id, limit, before)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, messages)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid conversation ID", err))
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), middleware.ClaimsFromContext(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}
