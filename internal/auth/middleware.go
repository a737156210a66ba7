package auth

import (
	"strings"

	"skillswap/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "auth_identity"

// Middleware validates bearer tokens and stores the identity in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.Authenticate(TokenFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err), "code": apperr.Code(err)})
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext retrieves the identity stored by Middleware.
func IdentityFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return "", false
	}
	identity, ok := val.(string)
	return identity, ok && identity != ""
}

// TokenFromRequest reads the bearer header, falling back to the token query
// parameter browsers use for WebSocket upgrades.
func TokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return c.Query("token")
}
