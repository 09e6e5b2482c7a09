package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/managethefans/portal-api/internal/model"
	"github.com/managethefans/portal-api/pkg/auth"
	"github.com/managethefans/portal-api/pkg/httputil"
)

const ContextClaims = "claims"

type AuthMiddleware struct {
	jwtSvc auth.JWTService
}

func NewAuthMiddleware(jwtSvc auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtSvc: jwtSvc}
}

// Authenticate validates the bearer token and stores the claims in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{
				Status:  "error",
				Message: "missing authorization header",
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{
				Status:  "error",
				Message: "invalid authorization format",
			})
			return
		}

		claims, err := m.jwtSvc.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{
				Status:  "error",
				Message: "invalid token",
			})
			return
		}

		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// RequireAdmin rejects requests from non-admin callers. Must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil || claims.Role != model.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, httputil.Response{
				Status:  "error",
				Message: "admin access required",
			})
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the validated claims set by Authenticate, or nil.
func ClaimsFromContext(c *gin.Context) *model.TokenClaims {
	value, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, ok := value.(*model.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
