package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/logger"
)

type Config struct {
	Log        logger.LogConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Engine     EngineConfig
	Thresholds idmgmt.Settings
	Presets    map[string]Preset
}

type ServerConfig struct {
	Host           string   // defaults to 0.0.0.0
	Port           int      // defaults to 8080
	APIToken       string   // bearer token required on /api/v1 when set
	AllowedOrigins []string // CORS origins in addition to localhost
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (optional, thresholds are kept in memory without it)
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type EngineConfig struct {
	GPUEnabled  bool // capability flag handed to effects
	Workers     int  // parallel frames in batch and thumbnail rendering
	JPEGQuality int  // 1-100
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool ("1", "true", "yes", "on").
func envBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return defaultVal
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Log: logger.LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
			Output: envString("LOG_OUTPUT", "stderr"),
		},
		Server: ServerConfig{
			Host:           envString("SERVER_HOST", "0.0.0.0"),
			Port:           envInt("SERVER_PORT", 8080),
			APIToken:       os.Getenv("API_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Engine: EngineConfig{
			GPUEnabled:  envBool("ENGINE_GPU_ENABLED", false),
			Workers:     envInt("ENGINE_WORKERS", constants.WorkerPoolSize),
			JPEGQuality: envInt("JPEG_QUALITY", constants.DefaultJPEGQuality),
		},
		Thresholds: idmgmt.Settings{
			DetectionThreshold: envFloat("DETECTION_THRESHOLD", constants.DefaultDetectionThreshold),
			MergeThreshold:     envFloat("MERGE_THRESHOLD", constants.DefaultMergeThreshold),
			MinPixelCount:      envInt("MIN_PIXEL_COUNT", constants.DefaultMinPixelCount),
			MaxMergeDistance:   envFloat("MAX_MERGE_DISTANCE", constants.DefaultMaxMergeDistance),
			MergeOverlapRatio:  envFloat("MERGE_OVERLAP_RATIO", constants.DefaultMergeOverlapRatio),
		},
		Presets: builtinPresets(),
	}
}
