package appointment

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/model"
	appointmentservice "github.com/managethefans/portal-api/internal/service/appointment"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc  *appointmentservice.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *appointmentservice.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// RegisterRoutes mounts the appointment endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.List)
		appointments.GET("/:id", h.Get)
		appointments.POST("", h.auth.RequireAdmin(), h.Propose)
		appointments.POST("/:id/respond", h.Respond)
		appointments.POST("/:id/cancel", h.Cancel)
		appointments.POST("/:id/complete", h.auth.RequireAdmin(), h.MarkCompleted)
		appointments.POST("/:id/decline", h.auth.RequireAdmin(), h.Decline)
		appointments.POST("/:id/reopen", h.auth.RequireAdmin(), h.Reopen)
		appointments.POST("/:id/resend-notification", h.auth.RequireAdmin(), h.ResendNotification)
	}
}

func (h *Handler) Propose(c *gin.Context) {
	var req model.ProposeAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	apt, err := h.svc.Propose(c.Request.Context(), middleware.ClaimsFromContext(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) Respond(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	var req model.RespondAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	apt, err := h.svc.Respond(c.Request.Context(), middleware.ClaimsFromContext(c), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	apt, err := h.svc.Cancel(c.Request.Context(), middleware.ClaimsFromContext(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) MarkCompleted(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	apt, err := h.svc.MarkCompleted(c.Request.Context(), middleware.ClaimsFromContext(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Decline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	apt, err := h.svc.Decline(c.Request.Context(), middleware.ClaimsFromContext(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Reopen(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	apt, err := h.svc.Reopen(c.Request.Context(), middleware.ClaimsFromContext(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ResendNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	var req model.ResendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	result, err := h.svc.ResendNotification(c.Request.Context(), middleware.ClaimsFromContext(c), id, req.Method)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment ID", err))
		return
	}

	apt, err := h.svc.Get(c.Request.Context(), middleware.ClaimsFromContext(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.AppointmentFilters{
		Status: model.AppointmentStatus(c.Query("status")),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid from date", err))
			return
		}
		filters.StartDate = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid to date", err))
			return
		}
		filters.EndDate = t
	}

	appointments, err := h.svc.List(c.Request.Context(), middleware.ClaimsFromContext(c), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}
