package safety

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, service *Service, authMiddleware gin.HandlerFunc) {
	handler := NewHandler(service)

	router.POST("/reports/:id/flags", authMiddleware, handler.FlagReport)

	flags := router.Group("/flags")
	flags.Use(authMiddleware)
	{
		flags.GET("", handler.ListFlags)
		flags.PATCH("/:id/resolve", handler.ResolveFlag)
	}
}
