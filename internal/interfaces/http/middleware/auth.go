package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/interfaces/http/response"
	"paygate.backend/pkg/jwt"
)

const ClaimsKey = "claims"

// Auth validates the Authorization: Bearer <token> header against svc and
// stores the parsed claims in the gin context for downstream handlers.
func Auth(svc *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			response.Error(c, domainerrors.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}

		claims, err := svc.ValidateToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			response.Error(c, domainerrors.Unauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
