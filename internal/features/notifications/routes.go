package notifications

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, repo *Repository, authMiddleware gin.HandlerFunc) {
	handler := NewHandler(repo)

	// Notification routes
	notifications := router.Group("/notifications")
	notifications.Use(authMiddleware)
	{
		notifications.GET("", handler.ListNotifications)
		notifications.GET("/unread-count", handler.GetUnreadCount)
		notifications.PATCH("/:id/read", handler.MarkAsRead)
		notifications.PATCH("/read-all", handler.MarkAllAsRead)
	}
}
