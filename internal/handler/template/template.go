package template

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/model"
	templateservice "github.com/managethefans/portal-api/internal/service/template"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc  *templateservice.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *templateservice.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// RegisterRoutes mounts template management and the send-communication flow.
// All template endpoints are admin-only.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	templates := r.Group("/templates", h.auth.RequireAdmin())
	{
		templates.POST("", h.Create)
		templates.GET("", h.List)
		templates.GET("/:id", h.Get)
		templates.PUT("/:id", h.Update)
		templates.DELETE("/:id", h.Delete)
	}

	communications := r.Group("/communications", h.auth.RequireAdmin())
	{
		communications.POST("", h.Send)
		communications.GET("", h.ListSent)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	tpl, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, tpl)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid template ID", err))
		return
	}

	tpl, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tpl)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid template ID", err))
		return
	}

	var req model.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	tpl, err := h.svc.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tpl)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid template ID", err))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}

func (h *Handler) List(c *gin.Context) {
	templates, err := h.svc.List(c.Request.Context(), c.Query("type"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, templates)
}

func (h *Handler) Send(c *gin.Context) {
	var req model.SendCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	sent, err := h.svc.SendCommunication(c.Request.Context(), middleware.ClaimsFromContext(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, sent)
}

func (h *Handler) ListSent(c *gin.Context) {
	recipientID, err := uuid.Parse(c.Query("recipient_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("recipient_id is required", err))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history, err := h.svc.ListSent(c.Request.Context(), recipientID, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, history)
}
