package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mediarelay/internal/platform"
)

// Config holds all application configuration
type Config struct {
	// Transport
	Token             string
	RequiredGroupID   int64  // 0 disables the membership gate
	RequiredGroupLink string // shown in join prompts

	// Admission
	Cooldown       time.Duration
	PlatformLimits map[platform.Platform]int

	// Extraction
	ToolPath       string
	ExtractTimeout time.Duration
	ResolveTimeout time.Duration
	MaxResolves    int64 // concurrent --get-url invocations
	TempDir        string

	// Delivery
	MaxSendSize int64
	SendPause   time.Duration

	// Workers
	Workers int

	// Circuit Breaker
	BreakerThreshold   int           // consecutive failures before opening
	BreakerTimeout     time.Duration // time to wait before half-open
	BreakerMaxRequests int           // max requests in half-open state

	// Resolved-URL cache
	RedisURL string // empty disables the cache
	CacheTTL time.Duration

	// Ops server
	MetricsPort     string
	MetricsUsername string
	MetricsPassword string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	token := os.Getenv("TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TOKEN required")
	}

	groupID, err := parseInt64(os.Getenv("REQUIRED_GROUP_ID"), 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUIRED_GROUP_ID: %w", err)
	}

	toolPath := os.Getenv("YTDLP_PATH")
	if toolPath == "" {
		toolPath = "yt-dlp"
	}

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}

	limits := make(map[platform.Platform]int, len(platform.All()))
	for _, p := range platform.All() {
		env := strings.ToUpper(string(p)) + "_DAILY_LIMIT"
		limits[p] = parseInt(os.Getenv(env), p.DefaultDailyLimit())
	}

	maxSendSize, err := parseInt64(os.Getenv("MAX_SEND_SIZE"), 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SEND_SIZE: %w", err)
	}

	return &Config{
		Token:             token,
		RequiredGroupID:   groupID,
		RequiredGroupLink: os.Getenv("REQUIRED_GROUP_LINK"),

		Cooldown:       parseDuration(os.Getenv("COOLDOWN"), 30*time.Second),
		PlatformLimits: limits,

		ToolPath:       toolPath,
		ExtractTimeout: parseDuration(os.Getenv("EXTRACT_TIMEOUT"), 300*time.Second),
		ResolveTimeout: parseDuration(os.Getenv("RESOLVE_TIMEOUT"), 30*time.Second),
		MaxResolves:    int64(parseInt(os.Getenv("MAX_CONCURRENT_RESOLVES"), 2)),
		TempDir:        os.Getenv("TMP_DIR"),

		MaxSendSize: maxSendSize,
		SendPause:   parseDuration(os.Getenv("SEND_PAUSE"), time.Second),

		Workers: parseInt(os.Getenv("WORKERS"), 2),

		BreakerThreshold:   parseInt(os.Getenv("BREAKER_THRESHOLD"), 5),
		BreakerTimeout:     parseDuration(os.Getenv("BREAKER_TIMEOUT"), 60*time.Second),
		BreakerMaxRequests: parseInt(os.Getenv("BREAKER_MAX_REQUESTS"), 2),

		RedisURL: os.Getenv("REDIS_URL"),
		CacheTTL: parseDuration(os.Getenv("CACHE_TTL"), 15*time.Minute),

		MetricsPort:     metricsPort,
		MetricsUsername: os.Getenv("METRICS_USERNAME"),
		MetricsPassword: os.Getenv("METRICS_PASSWORD"),
	}, nil
}

// Helper functions for parsing configuration values

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

func parseInt64(s string, defaultValue int64) (int64, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
