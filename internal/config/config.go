package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	AppEnv      string
	LogLevel    string
	MongoURI    string
	MongoDB     string
	JWTSecret   string
	JWTExpire   int
	FrontendURL string

	FirebaseServiceAccountPath string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	RedisAddress  string
	RedisPassword string

	GeocoderBaseURL   string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
	GeocodeCacheTTL   time.Duration

	ObfuscateMinKm float64
	ObfuscateMaxKm float64

	MatchMinScore        float64
	MatchTopN            int
	MatchCandidateWindow int
	MatchRecencyDays     int
	MatchTimeout         time.Duration
	MatchHighThreshold   float64
	MatchMediumThreshold float64

	GoogleVisionAPIKey string

	RateLimitPerMinute int
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "rewardz"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		JWTExpire:   getEnvInt("JWT_EXPIRE_HOURS", 24),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),

		CloudinaryCloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:       getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "rewardz"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		GeocoderBaseURL:   getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "rewardz-api/1.0"),
		GeocoderTimeout:   getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		GeocodeCacheTTL:   getEnvDuration("GEOCODE_CACHE_TTL", 24*time.Hour),

		ObfuscateMinKm: getEnvFloat("OBFUSCATE_MIN_KM", 0.5),
		ObfuscateMaxKm: getEnvFloat("OBFUSCATE_MAX_KM", 2.0),

		MatchMinScore:        getEnvFloat("MATCH_MIN_SCORE", 20),
		MatchTopN:            getEnvInt("MATCH_TOP_N", 3),
		MatchCandidateWindow: getEnvInt("MATCH_CANDIDATE_WINDOW", 200),
		MatchRecencyDays:     getEnvInt("MATCH_RECENCY_DAYS", 90),
		MatchTimeout:         getEnvDuration("MATCH_TIMEOUT", 20*time.Second),
		MatchHighThreshold:   getEnvFloat("MATCH_HIGH_THRESHOLD", 70),
		MatchMediumThreshold: getEnvFloat("MATCH_MEDIUM_THRESHOLD", 40),

		GoogleVisionAPIKey: getEnv("GOOGLE_VISION_API_KEY", ""),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
	}
}

// IsProduction reports whether the service runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid number for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}
