package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/managethefans/portal-api/internal/middleware"
	billingservice "github.com/managethefans/portal-api/internal/service/billing"
	apperrors "github.com/managethefans/portal-api/pkg/errors"
	"github.com/managethefans/portal-api/pkg/httputil"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	svc *billingservice.Service
}

func NewHandler(svc *billingservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated billing endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	billing := r.Group("/billing")
	{
		billing.POST("/setup-intent", h.CreateSetupIntent)
		billing.GET("/subscription", h.GetSubscription)
		billing.POST("/subscription/cancel", h.CancelSubscription)
	}
}

// RegisterWebhookRoutes mounts the public webhook endpoint. Signature
// verification is the authentication on this path.
func (h *Handler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) CreateSetupIntent(c *gin.Context) {
	resp, err := h.svc.CreateSetupIntent(c.Request.Context(), middleware.ClaimsFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) GetSubscription(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)

	userID := claims.UserID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid user_id", err))
			return
		}
		if parsed != claims.UserID && claims.Role != "admin" {
			httputil.RespondWithError(c, apperrors.Forbidden("cannot read another user's subscription"))
			return
		}
		userID = parsed
	}

	sub, err := h.svc.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, sub)
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)

	userID := claims.UserID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid user_id", err))
			return
		}
		userID = parsed
	}

	if err := h.svc.CancelSubscription(c.Request.Context(), claims, userID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}

func (h *Handler) StripeWebhook(c *gin.Context) {
	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		httputil.RespondWithError(c, apperrors.BadRequest("missing Stripe-Signature header", nil))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("failed to read request body", err))
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload, sigHeader); err != nil {
		// replays must be acknowledged or the provider keeps retrying
		if errors.Is(err, billingservice.ErrDuplicateEvent) {
			c.JSON(http.StatusOK, httputil.Response{Status: "success", Message: "duplicate"})
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}
