package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// Config is the application configuration
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string // empty disables authentication

	// Report server
	UpstreamURL string
	ReportID    string
	Operation   models.Operation
	AddedBy     string
	HTTPTimeout time.Duration

	// Classification tiles
	TileServerURL string
	TileProxy     bool
	TileSensor    string // sensor authorized at startup, empty to wait for POST /tiles/authorize
	TileTimeout   time.Duration
	TileCacheSize int

	RateLimit    int // mutating requests per minute per client
	SyncInterval time.Duration

	PostHogKey  string
	PostHogHost string
}

// Load reads the configuration from the environment
func Load() *Config {
	op, err := models.ParseOperation(getEnv("OPERATION", string(models.OperationSAD)))
	if err != nil || op == models.OperationNone {
		log.Printf("Invalid OPERATION, using %s: %v", models.OperationSAD, err)
		op = models.OperationSAD
	}

	return &Config{
		Port:      getEnv("PORT", ":8080"),
		DBPath:    getEnv("DB_PATH", "./data/forestwatch.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		UpstreamURL: getEnv("UPSTREAM_URL", "http://localhost:8000"),
		ReportID:    getEnv("REPORT_ID", "current"),
		Operation:   op,
		AddedBy:     getEnv("ADDED_BY", "analyst"),
		HTTPTimeout: getDuration("HTTP_TIMEOUT", 30*time.Second),

		TileServerURL: getEnv("TILE_SERVER_URL", "https://earthengine.googleapis.com"),
		TileProxy:     getBool("TILE_PROXY", false),
		TileSensor:    os.Getenv("TILE_SENSOR"),
		TileTimeout:   getDuration("TILE_TIMEOUT", 20*time.Second),
		TileCacheSize: getInt("TILE_CACHE_SIZE", 512),

		RateLimit:    getInt("RATE_LIMIT", 120),
		SyncInterval: getDuration("SYNC_INTERVAL", time.Minute),

		PostHogKey:  os.Getenv("POSTHOG_KEY"),
		PostHogHost: getEnv("POSTHOG_HOST", "https://us.i.posthog.com"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

// getDuration accepts Go durations ("20s") or plain seconds ("20")
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("Invalid %s=%q, using %s", key, v, fallback)
	return fallback
}
