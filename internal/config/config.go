package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	APIKey         string
	DatabasePath   string
	FrameDirectory string
	LogDirectory   string

	IngestEndpoint string // ZeroMQ PULL endpoint, empty disables ingest
	IngestLogEvery int

	DefaultProfile                        string
	FlashFlowEnabled                      bool
	RequireOcrBeforeCapturingUxOnlyFrames bool
	DebugRetainImages                     bool
	NameExpiryDuration                    time.Duration

	SessionTimeout time.Duration // sessions idle longer than this are abandoned
	ReapInterval   time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnvAsInt("PORT", 8080),
		APIKey:         getEnv("API_KEY", ""),
		DatabasePath:   getEnv("DB_PATH", filepath.Join(".", "data", "cardscan.db")),
		FrameDirectory: getEnv("FRAME_DIR", filepath.Join(".", "frames")),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),

		IngestEndpoint: getEnv("INGEST_ENDPOINT", ""),
		IngestLogEvery: getEnvAsInt("INGEST_LOG_EVERY", 100),

		DefaultProfile:                        getEnv("DEFAULT_PROFILE", "fast"),
		FlashFlowEnabled:                      getEnvAsBool("FLASH_FLOW", false),
		RequireOcrBeforeCapturingUxOnlyFrames: getEnvAsBool("REQUIRE_OCR_BEFORE_UX_FRAMES", true),
		DebugRetainImages:                     getEnvAsBool("DEBUG_RETAIN_IMAGES", false),
		NameExpiryDuration:                    seconds(getEnvAsFloat("NAME_EXPIRY_SECONDS", 4.0)),

		SessionTimeout: time.Duration(getEnvAsInt64("SESSION_TIMEOUT", 60)) * time.Second,
		ReapInterval:   time.Duration(getEnvAsInt64("REAP_INTERVAL", 10)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil && floatValue > 0 {
			return floatValue
		}
	}
	return defaultValue
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
