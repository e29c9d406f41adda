package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/response"
)

// ContextAdminKey is the gin context key storing admin JWT claims.
const ContextAdminKey = "currentAdmin"

// TokenValidator validates admin bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.AdminClaims, error)
}

// RequireAdmin protects routes by requiring a valid admin token.
func RequireAdmin(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(ContextAdminKey, claims)
		c.Next()
	}
}

// AdminFromContext returns the claims stored by RequireAdmin.
func AdminFromContext(c *gin.Context) *models.AdminClaims {
	value, exists := c.Get(ContextAdminKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.AdminClaims)
	return claims
}
