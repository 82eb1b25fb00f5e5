package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voicelinehq/voiceline/internal/models"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

const identityKey = "auth.identity"

// Identity is the authenticated caller, resolved from a verified token.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.UserRoleAdmin
}

// Middleware verifies the bearer token and injects the caller identity.
// The account is re-read on every request so deleted users lose access
// before their token expires.
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.VerifyToken(strings.TrimPrefix(raw, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := s.ResolveUser(c.Request.Context(), claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		SetIdentity(c, Identity{UserID: user.ID, Role: user.Role})
		c.Next()
	}
}

// SetIdentity attaches a resolved caller to the request. Middleware calls it
// after token verification; anything standing in for the gate can too.
func SetIdentity(c *gin.Context, identity Identity) {
	c.Set(identityKey, identity)
}

// CurrentIdentity returns the caller set by Middleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}

	identity, ok := value.(Identity)
	return identity, ok
}

// RequireAdmin gates a route group to admin accounts. Chain after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		if !identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Next()
	}
}
