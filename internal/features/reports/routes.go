package reports

import (
	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/pkg/ratelimit"
)

// RegisterRoutes mounts /reports. createLimiter throttles report and
// sighting creation per user.
func RegisterRoutes(router *gin.RouterGroup, service *Service, authMiddleware, optionalAuth gin.HandlerFunc, createLimiter *ratelimit.RateLimiter) {
	handler := NewHandler(service)
	throttle := ratelimit.KeyedMiddleware(createLimiter, ratelimit.ByUser)

	reports := router.Group("/reports")
	{
		reports.GET("", optionalAuth, handler.ListReports)
		reports.GET("/stream", handler.StreamReports)
		reports.GET("/:id", optionalAuth, handler.GetReport)
		reports.GET("/:id/sightings", handler.ListSightings)

		reports.POST("", authMiddleware, throttle, handler.CreateReport)
		reports.PATCH("/:id", authMiddleware, handler.UpdateReport)
		reports.PATCH("/:id/status", authMiddleware, handler.UpdateStatus)
		reports.DELETE("/:id", authMiddleware, handler.DeleteReport)
		reports.POST("/:id/photo", authMiddleware, handler.UploadPhoto)
		reports.POST("/:id/sightings", authMiddleware, throttle, handler.CreateSighting)
	}
}
