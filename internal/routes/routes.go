package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/config"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/matching"
	"github.com/xyz-asif/rewardz/internal/features/notifications"
	"github.com/xyz-asif/rewardz/internal/features/reports"
	"github.com/xyz-asif/rewardz/internal/features/safety"
	"github.com/xyz-asif/rewardz/internal/features/vision"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/cloudinary"
	"github.com/xyz-asif/rewardz/internal/pkg/firebase"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

// Deps are the long-lived clients built in main. Firebase, Cloudinary and
// Redis are optional: nil Firebase clients, a nil Cloudinary service or a
// disabled cache.Store turn their features off.
type Deps struct {
	DB         *mongo.Database
	Config     *config.Config
	Log        logrus.FieldLogger
	Firebase   *firebase.Clients
	Cache      *cache.Store
	Cloudinary *cloudinary.Service
	Geocoder   *geo.Geocoder
	Obfuscator *geo.Obfuscator
	Labeler    *vision.Labeler
	Limiter    *ratelimit.RateLimiter
}

// SetupRoutes wires every feature under /api/v1 and returns the match
// orchestrator so main can drain it on shutdown
func SetupRoutes(router *gin.Engine, d Deps) *matching.Service {
	cfg := d.Config
	api := router.Group("/api/v1")

	// Repositories
	usersRepo := auth.NewRepository(d.DB)
	notificationsRepo := notifications.NewRepository(d.DB)
	reportsRepo := reports.NewRepository(d.DB, d.Log)
	matchesRepo := matching.NewRepository(d.DB)
	flagsRepo := safety.NewRepository(d.DB)

	// Optional vendor clients; typed nils must not reach interface fields
	var verifier auth.TokenVerifier
	var push notifications.PushSender
	if d.Firebase != nil && d.Firebase.Auth != nil {
		verifier = d.Firebase.Auth
	}
	if d.Firebase != nil && d.Firebase.Messaging != nil {
		push = d.Firebase.Messaging
	}
	var photos reports.PhotoStore
	if d.Cloudinary != nil {
		photos = d.Cloudinary
	}
	var labeler reports.Labeler
	if d.Labeler.Available() {
		labeler = d.Labeler
	}

	dispatcher := notifications.NewDispatcher(notificationsRepo, usersRepo, push, d.Log)

	reportService := reports.NewService(reports.Deps{
		Store:      reportsRepo,
		Geocoder:   d.Geocoder,
		Obfuscator: d.Obfuscator,
		Photos:     photos,
		Labeler:    labeler,
		Notifier:   dispatcher,
		Log:        d.Log,
	})

	matcher := matching.NewService(
		reportsRepo,
		matchesRepo,
		matching.NewScorer(matching.DefaultWeights(), cfg.MatchHighThreshold, cfg.MatchMediumThreshold),
		dispatcher,
		d.Cache,
		matching.Config{
			MinScore:        cfg.MatchMinScore,
			TopN:            cfg.MatchTopN,
			CandidateWindow: cfg.MatchCandidateWindow,
			RecencyDays:     cfg.MatchRecencyDays,
			Timeout:         cfg.MatchTimeout,
			LockTTL:         cfg.MatchTimeout + 10*time.Second,
		},
		d.Log,
	)
	reportService.SetMatcher(matcher)

	safetyService := safety.NewService(flagsRepo, reportService, d.Log)

	// Register feature routes
	authMiddleware := auth.RegisterRoutes(api, usersRepo, verifier, cfg, d.Log)
	optionalAuth := auth.NewOptionalAuthMiddleware(usersRepo, cfg)

	reports.RegisterRoutes(api, reportService, authMiddleware, optionalAuth, d.Limiter)
	matching.RegisterRoutes(api, matcher, authMiddleware)
	safety.RegisterRoutes(api, safetyService, authMiddleware)
	notifications.RegisterRoutes(api, notificationsRepo, authMiddleware)
	vision.RegisterRoutes(api, d.Labeler, authMiddleware)

	return matcher
}
