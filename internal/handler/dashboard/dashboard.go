package dashboard

import (
	"github.com/gin-gonic/gin"

	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/readmodel"
	"github.com/managethefans/portal-api/pkg/httputil"
)

type Handler struct {
	svc *readmodel.Service
}

func NewHandler(svc *readmodel.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.Get)
}

func (h *Handler) Get(c *gin.Context) {
	dash, err := h.svc.GetDashboard(c.Request.Context(), middleware.ClaimsFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dash)
}
