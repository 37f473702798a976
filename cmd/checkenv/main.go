// Command checkenv verifies that every backing service configured in .env is
// reachable before the API is started. Optional services that are not
// configured are reported as skipped.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/config"
	"github.com/xyz-asif/rewardz/internal/database"
	"github.com/xyz-asif/rewardz/internal/features/vision"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/cloudinary"
	"github.com/xyz-asif/rewardz/internal/pkg/firebase"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
)

type check struct {
	name     string
	required bool
	run      func(ctx context.Context) (string, error)
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, AppName: "rewardz-checkenv"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, c := range checks(cfg, log) {
		entry := log.WithField("service", c.name)
		detail, err := c.run(ctx)
		switch {
		case err != nil && c.required:
			failed++
			entry.WithError(err).Error("unreachable")
		case err != nil:
			entry.WithError(err).Warn("unreachable, feature will be disabled")
		case detail == "":
			entry.Info("ok")
		default:
			entry.WithField("detail", detail).Info("ok")
		}
	}

	if failed > 0 {
		log.WithField("failed", failed).Error("environment is not ready")
		os.Exit(1)
	}
	log.Info("all required services reachable")
}

func checks(cfg *config.Config, log logrus.FieldLogger) []check {
	return []check{
		{name: "mongodb", required: true, run: func(ctx context.Context) (string, error) {
			db, err := database.Connect(ctx, database.DefaultConfig(cfg.MongoURI, cfg.MongoDB))
			if err != nil {
				return "", err
			}
			defer db.Disconnect(context.Background())
			if !db.SupportsChangeStreams(ctx) {
				return "standalone, report stream disabled", nil
			}
			return "replica set", nil
		}},
		{name: "redis", run: func(ctx context.Context) (string, error) {
			if cfg.RedisAddress == "" {
				return "skipped", nil
			}
			store, err := cache.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword)
			if err != nil {
				return "", err
			}
			return "", store.Close()
		}},
		{name: "firebase", run: func(ctx context.Context) (string, error) {
			if cfg.FirebaseServiceAccountPath == "" {
				return "skipped", nil
			}
			_, err := firebase.Init(ctx, cfg.FirebaseServiceAccountPath)
			return "", err
		}},
		{name: "cloudinary", run: func(ctx context.Context) (string, error) {
			if cfg.CloudinaryCloudName == "" {
				return "skipped", nil
			}
			_, err := cloudinary.NewService(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryUploadFolder)
			return cfg.CloudinaryUploadFolder, err
		}},
		{name: "vision", run: func(ctx context.Context) (string, error) {
			if cfg.GoogleVisionAPIKey == "" {
				return "skipped", nil
			}
			_, err := vision.NewLabeler(ctx, cfg.GoogleVisionAPIKey, cfg.GeocoderTimeout, log)
			return "", err
		}},
		{name: "geocoder", required: true, run: func(ctx context.Context) (string, error) {
			g := geo.NewGeocoder(geo.GeocoderConfig{
				BaseURL:   cfg.GeocoderBaseURL,
				UserAgent: cfg.GeocoderUserAgent,
				Timeout:   cfg.GeocoderTimeout,
			}, nil, log)
			res, err := g.Lookup(ctx, "Nairobi")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)", res.DisplayAddress, geo.FormatCoordinates(res.Lat, res.Lon)), nil
		}},
	}
}
