package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/managethefans/portal-api/internal/model"
	authservice "github.com/managethefans/portal-api/internal/service/auth"
	userservice "github.com/managethefans/portal-api/internal/service/user"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	authSvc *authservice.Service
	userSvc *userservice.Service
}

func NewHandler(authSvc *authservice.Service, userSvc *userservice.Service) *Handler {
	return &Handler{authSvc: authSvc, userSvc: userSvc}
}

// RegisterRoutes mounts the public auth endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/verify", h.Verify)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user, err := h.userSvc.Register(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, user.Sanitized())
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user, err := h.userSvc.Verify(c.Request.Context(), req.Token)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user.Sanitized())
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	pair, user, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"tokens": pair,
		"user":   user.Sanitized(),
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	pair, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, pair)
}
