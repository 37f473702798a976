package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/config"
)

// RegisterRoutes registers the auth routes and returns the middleware other
// features protect their routes with
func RegisterRoutes(router *gin.RouterGroup, repo *Repository, verifier TokenVerifier, cfg *config.Config, log logrus.FieldLogger) gin.HandlerFunc {
	handler := NewHandler(repo, verifier, cfg, log)
	authMiddleware := NewAuthMiddleware(repo, cfg)

	auth := router.Group("/auth")
	{
		auth.POST("/firebase", handler.FirebaseLogin)

		me := auth.Group("/me")
		me.Use(authMiddleware)
		{
			me.GET("", handler.GetMe)
			me.PATCH("/preferences", handler.UpdatePreferences)
			me.POST("/fcm-tokens", handler.RegisterFCMToken)
		}
	}

	return authMiddleware
}
