// @title Rewardz API
// @version 1.0
// @description Lost and found pet reports with geocoding, location privacy and automatic matching
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer <token>"
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	docs "github.com/xyz-asif/rewardz/docs"
	"github.com/xyz-asif/rewardz/internal/config"
	"github.com/xyz-asif/rewardz/internal/database"
	"github.com/xyz-asif/rewardz/internal/features/vision"
	"github.com/xyz-asif/rewardz/internal/middleware"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/cloudinary"
	"github.com/xyz-asif/rewardz/internal/pkg/firebase"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	"github.com/xyz-asif/rewardz/internal/pkg/ratelimit"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	"github.com/xyz-asif/rewardz/internal/pkg/validator"
	"github.com/xyz-asif/rewardz/internal/routes"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		AppName:    "rewardz-api",
		Production: cfg.IsProduction(),
	})

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port
	docs.SwaggerInfo.BasePath = "/api/v1"

	if err := validator.RegisterWithGin(); err != nil {
		log.WithError(err).Fatal("Failed to register validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, database.DefaultConfig(cfg.MongoURI, cfg.MongoDB))
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Disconnect(context.Background())
	if !db.SupportsChangeStreams(ctx) {
		log.Warn("MongoDB is not a replica set; /reports/stream will return 503")
	}

	store, err := cache.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable; geocode cache and match locks disabled")
	}
	defer store.Close()

	fb, err := firebase.Init(ctx, cfg.FirebaseServiceAccountPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize Firebase")
	}
	if fb.Auth == nil {
		log.Warn("Firebase not configured; login and push are disabled")
	}

	cld, err := cloudinary.NewService(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryUploadFolder)
	if err != nil {
		log.WithError(err).Warn("Cloudinary not configured; photo upload is disabled")
		cld = nil
	}

	labeler, err := vision.NewLabeler(ctx, cfg.GoogleVisionAPIKey, cfg.GeocoderTimeout, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize Vision client")
	}

	geocoder := geo.NewGeocoder(geo.GeocoderConfig{
		BaseURL:   cfg.GeocoderBaseURL,
		UserAgent: cfg.GeocoderUserAgent,
		Timeout:   cfg.GeocoderTimeout,
		CacheTTL:  cfg.GeocodeCacheTTL,
	}, store, log)

	limiter := ratelimit.New(cfg.RateLimitPerMinute, time.Minute)
	limiter.StartCleanup(ctx, 5*time.Minute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS(cfg.FrontendURL))

	router.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "Database unavailable", "DB_UNAVAILABLE")
			return
		}
		response.Success(c, map[string]interface{}{
			"status": "ok",
			"redis":  store.Enabled(),
			"vision": labeler.Available(),
			"limits": limiter.Stats(),
			"time":   time.Now().Unix(),
		})
	})

	router.GET(
		"/swagger/*any",
		ginSwagger.WrapHandler(
			swaggerFiles.Handler,
			ginSwagger.URL("/swagger/doc.json"),
			ginSwagger.DeepLinking(true),
			ginSwagger.DefaultModelsExpandDepth(-1),
			ginSwagger.DocExpansion("none"),
			ginSwagger.PersistAuthorization(true),
		),
	)

	matcher := routes.SetupRoutes(router, routes.Deps{
		DB:         db.Database,
		Config:     cfg,
		Log:        log,
		Firebase:   fb,
		Cache:      store,
		Cloudinary: cld,
		Geocoder:   geocoder,
		Obfuscator: geo.NewObfuscator(cfg.ObfuscateMinKm, cfg.ObfuscateMaxKm),
		Labeler:    labeler,
		Limiter:    limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// in-flight match passes finish before Mongo disconnects
	drained := make(chan struct{})
	go func() {
		matcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("Match passes still running at shutdown")
	}

	log.Info("Server exited")
}
