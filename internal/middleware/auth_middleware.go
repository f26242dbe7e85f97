package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "warnet/backend/internal/errors"
	"warnet/backend/internal/service"
)

const PrincipalContextKey = "principal"

func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			writeError(c, apperrors.Unauthorized("missing authorization header"))
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(c, apperrors.Unauthorized("invalid authorization format"))
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			writeError(c, apperrors.Unauthorized("invalid authorization format"))
			return
		}

		principal, apiErr := authService.ParseToken(c.Request.Context(), token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(PrincipalContextKey, *principal)
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (service.Principal, bool) {
	value, ok := c.Get(PrincipalContextKey)
	if !ok {
		return service.Principal{}, false
	}
	principal, ok := value.(service.Principal)
	return principal, ok
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
