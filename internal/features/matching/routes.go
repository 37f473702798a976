package matching

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, service *Service, authMiddleware gin.HandlerFunc) {
	handler := NewHandler(service)

	reports := router.Group("/reports/:id/matches")
	reports.Use(authMiddleware)
	{
		reports.GET("", handler.ListMatches)
		reports.POST("/refresh", handler.RefreshMatches)
	}

	matches := router.Group("/matches")
	matches.Use(authMiddleware)
	{
		matches.PATCH("/:id/accept", handler.AcceptMatch)
		matches.PATCH("/:id/reject", handler.RejectMatch)
	}
}
