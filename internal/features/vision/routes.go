package vision

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, labeler *Labeler, authMiddleware gin.HandlerFunc) {
	handler := NewHandler(labeler)

	vision := router.Group("/vision")
	vision.Use(authMiddleware)
	{
		vision.POST("/labels", handler.DetectLabels)
	}
}
