package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/config"
	idToken "github.com/xyz-asif/rewardz/internal/pkg/jwt"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
)

// UserLoader is the slice of the repository the middleware needs
type UserLoader interface {
	GetUserByID(ctx context.Context, userID string) (*User, error)
}

// NewAuthMiddleware creates a Gin middleware for JWT authentication. It sets
// "user" and "userID" on the context.
func NewAuthMiddleware(repo UserLoader, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required", "AUTH_REQUIRED")
			c.Abort()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "Invalid authorization format", "INVALID_AUTH_FORMAT")
			c.Abort()
			return
		}

		claims, err := idToken.ValidateToken(parts[1], cfg.JWTSecret)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token", "INVALID_TOKEN")
			c.Abort()
			return
		}

		user, err := repo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Unauthorized(c, "User not found", "USER_NOT_FOUND")
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID.Hex())
		c.Next()
	}
}

// NewOptionalAuthMiddleware loads the user when a valid token is present and
// carries on anonymously otherwise
func NewOptionalAuthMiddleware(repo UserLoader, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		claims, err := idToken.ValidateToken(parts[1], cfg.JWTSecret)
		if err == nil {
			if user, err := repo.GetUserByID(c.Request.Context(), claims.UserID); err == nil {
				c.Set("user", user)
				c.Set("userID", user.ID.Hex())
			}
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, if any
func CurrentUser(c *gin.Context) (*User, bool) {
	usr, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := usr.(*User)
	return user, ok && user != nil
}
