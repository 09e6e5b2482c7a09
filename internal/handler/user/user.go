package user

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/model"
	userservice "github.com/managethefans/portal-api/internal/service/user"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc  *userservice.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *userservice.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// RegisterRoutes mounts user profile and roster endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.Me)
		users.POST("/me/onboarding", h.CompleteOnboarding)
		users.PUT("/me/notification-method", h.SetNotificationMethod)
		users.GET("", h.auth.RequireAdmin(), h.List)
		users.GET("/:id", h.Get)
		users.PUT("/:id", h.Update)
		users.DELETE("/:id", h.auth.RequireAdmin(), h.Deactivate)
	}
}

func (h *Handler) Me(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)

	user, err := h.svc.Get(c.Request.Context(), claims, claims.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

func (h *Handler) CompleteOnboarding(c *gin.Context) {
	user, err := h.svc.CompleteOnboarding(c.Request.Context(), middleware.ClaimsFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

type notificationMethodRequest struct {
	Method string `json:"method" binding:"required,notifymethod"`
}

func (h *Handler) SetNotificationMethod(c *gin.Context) {
	var req notificationMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user, err := h.svc.SetDefaultNotificationMethod(c.Request.Context(), middleware.ClaimsFromContext(c), req.Method)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user ID", err))
		return
	}

	user, err := h.svc.Get(c.Request.Context(), middleware.ClaimsFromContext(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user ID", err))
		return
	}

	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user, err := h.svc.Update(c.Request.Context(), middleware.ClaimsFromContext(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

func (h *Handler) List(c *gin.Context) {
	var filters model.UserFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query parameters", err))
		return
	}

	users, err := h.svc.List(c.Request.Context(), middleware.ClaimsFromContext(c), &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	sanitized := make([]model.User, 0, len(users))
	for _, u := range users {
		sanitized = append(sanitized, u.Sanitized())
	}
	httputil.RespondWithSuccess(c, sanitized)
}

func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user ID", err))
		return
	}

	if err := h.svc.Deactivate(c.Request.Context(), middleware.ClaimsFromContext(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}
